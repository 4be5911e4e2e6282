// Package history records voxel edits as undoable batches.
package history

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

var (
	ErrBatchOpen     = errors.New("edit batch already open")
	ErrNoBatch       = errors.New("no edit batch open")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Approximate in-memory cost used for the byte budget.
const (
	changeBytes = 32
	batchBytes  = 48
)

// Change is one voxel delta.
type Change struct {
	Pos  voxel.Pos
	Prev voxel.Voxel
	Next voxel.Voxel
}

// Batch is one undoable unit.
type Batch struct {
	Changes []Change
}

func (b *Batch) size() int {
	return batchBytes + len(b.Changes)*changeBytes
}

// Chunks returns the distinct chunks the batch touches, sorted.
func (b *Batch) Chunks() []voxel.ChunkCoord {
	seen := make(map[voxel.ChunkCoord]struct{})
	var out []voxel.ChunkCoord
	for _, c := range b.Changes {
		coord := c.Pos.Chunk()
		if _, ok := seen[coord]; !ok {
			seen[coord] = struct{}{}
			out = append(out, coord)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Writer applies voxel writes. The chunk store satisfies it.
type Writer interface {
	SetVoxel(p voxel.Pos, v voxel.Voxel) (voxel.Voxel, error)
}

// Config bounds the history.
type Config struct {
	MaxBatches int
	MaxBytes   int
}

// DefaultConfig keeps 128 batches within 32 MiB.
func DefaultConfig() Config {
	return Config{MaxBatches: 128, MaxBytes: 32 << 20}
}

// History is a pair of bounded undo/redo stacks.
type History struct {
	cfg     Config
	undo    []*Batch
	redo    []*Batch
	current *Batch
	bytes   int
	dropped int
}

// New creates an empty history.
func New(cfg Config) *History {
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = DefaultConfig().MaxBatches
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultConfig().MaxBytes
	}
	return &History{cfg: cfg}
}

// BeginBatch opens a new batch. Any redo history is discarded.
func (h *History) BeginBatch() error {
	if h.current != nil {
		return ErrBatchOpen
	}
	h.current = &Batch{}
	h.clearRedo()
	return nil
}

// Open reports whether a batch is being recorded.
func (h *History) Open() bool {
	return h.current != nil
}

// RecordVoxelChange appends a delta to the open batch.
func (h *History) RecordVoxelChange(p voxel.Pos, prev, next voxel.Voxel) error {
	if h.current == nil {
		return ErrNoBatch
	}
	if prev == next {
		return nil
	}
	h.current.Changes = append(h.current.Changes, Change{Pos: p, Prev: prev, Next: next})
	return nil
}

// EndBatch seals the open batch and pushes it when non-empty.
// It reports whether a batch was pushed.
func (h *History) EndBatch() (bool, error) {
	if h.current == nil {
		return false, ErrNoBatch
	}
	b := h.current
	h.current = nil
	if len(b.Changes) == 0 {
		return false, nil
	}
	h.clearRedo()
	h.undo = append(h.undo, b)
	h.bytes += b.size()
	h.trim()
	return true, nil
}

// Undo reverts the newest batch through w.
func (h *History) Undo(w Writer) (*Batch, error) {
	if h.current != nil {
		return nil, ErrBatchOpen
	}
	if len(h.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	b := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]

	var firstErr error
	for i := len(b.Changes) - 1; i >= 0; i-- {
		c := b.Changes[i]
		if _, err := w.SetVoxel(c.Pos, c.Prev); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("undo %s: %w", c.Pos, err)
		}
	}
	h.redo = append(h.redo, b)
	return b, firstErr
}

// Redo re-applies the most recently undone batch through w.
func (h *History) Redo(w Writer) (*Batch, error) {
	if h.current != nil {
		return nil, ErrBatchOpen
	}
	if len(h.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	b := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]

	var firstErr error
	for _, c := range b.Changes {
		if _, err := w.SetVoxel(c.Pos, c.Next); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("redo %s: %w", c.Pos, err)
		}
	}
	h.undo = append(h.undo, b)
	return b, firstErr
}

// NextUndo returns the batch Undo would revert, or nil.
func (h *History) NextUndo() *Batch {
	if h.current != nil || len(h.undo) == 0 {
		return nil
	}
	return h.undo[len(h.undo)-1]
}

// NextRedo returns the batch Redo would re-apply, or nil.
func (h *History) NextRedo() *Batch {
	if h.current != nil || len(h.redo) == 0 {
		return nil
	}
	return h.redo[len(h.redo)-1]
}

// CanUndo reports whether Undo has a batch to revert.
func (h *History) CanUndo() bool { return len(h.undo) > 0 && h.current == nil }

// CanRedo reports whether Redo has a batch to re-apply.
func (h *History) CanRedo() bool { return len(h.redo) > 0 && h.current == nil }

// Depth returns the sizes of the undo and redo stacks.
func (h *History) Depth() (undo, redo int) {
	return len(h.undo), len(h.redo)
}

// Bytes returns the approximate memory held by both stacks.
func (h *History) Bytes() int {
	return h.bytes
}

// Dropped returns how many batches were discarded to stay within budget.
func (h *History) Dropped() int {
	return h.dropped
}

// Clear forgets all history, including an open batch.
func (h *History) Clear() {
	h.undo, h.redo, h.current = nil, nil, nil
	h.bytes = 0
}

func (h *History) clearRedo() {
	for _, b := range h.redo {
		h.bytes -= b.size()
	}
	h.redo = nil
}

// trim drops the oldest batches until both limits hold. The newest batch is
// always kept.
func (h *History) trim() {
	for len(h.undo) > 1 && (len(h.undo) > h.cfg.MaxBatches || h.bytes > h.cfg.MaxBytes) {
		h.bytes -= h.undo[0].size()
		h.undo[0] = nil
		h.undo = h.undo[1:]
		h.dropped++
	}
}
