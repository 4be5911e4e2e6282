package editor

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// deferred is an operation waiting for stored chunks to come back into memory.
type deferred struct {
	op     string
	chunks []voxel.ChunkCoord // pinned until run or dropped
	run    func() error
}

// whenResident defers run until every chunk in coords is resident. It reports
// false, leaving the caller to run the operation itself, when nothing needs
// loading. Deferred chunks are pinned so the scheduler cannot evict them
// again while the rest arrive.
func (e *Engine) whenResident(op string, coords []voxel.ChunkCoord, run func() error) bool {
	missing := e.store.Missing(coords)
	if len(missing) == 0 {
		return false
	}
	e.store.Pin(coords...)
	e.pending = &deferred{op: op, chunks: coords, run: run}
	e.log.Info("loading stored chunks before applying edit",
		zap.String("op", op),
		zap.Int("chunks", len(missing)))
	for _, c := range missing {
		e.RequestChunk(c)
	}
	e.busyChanged()
	return true
}

func (e *Engine) pollPending() {
	d := e.pending
	if d == nil {
		return
	}
	if missing := e.store.Missing(d.chunks); len(missing) > 0 {
		for _, c := range missing {
			e.RequestChunk(c)
		}
		return
	}
	e.pending = nil
	e.store.Unpin(d.chunks...)
	if err := d.run(); err != nil {
		e.publish(Event{Kind: EventEditFailed, Text: d.op + " failed", Err: err})
	}
	e.busyChanged()
}

// abortPending gives up on the deferred operation when one of its chunks
// could not be read.
func (e *Engine) abortPending(c voxel.ChunkCoord, err error) {
	d := e.pending
	if d == nil || !slices.Contains(d.chunks, c) {
		return
	}
	e.dropPending()
	e.publish(Event{
		Kind: EventEditFailed,
		Text: fmt.Sprintf("%s abandoned: chunk %s could not be loaded", d.op, c),
		Err:  err,
	})
	e.busyChanged()
}

func (e *Engine) dropPending() {
	if e.pending == nil {
		return
	}
	e.store.Unpin(e.pending.chunks...)
	e.pending = nil
}
