// Package importer converts Minecraft worlds into native terrain on a worker
// goroutine. The caller receives progress and the result as messages.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/logger"
	"github.com/Faultbox/blockforge/pkg/mcworld"
)

// progressEvery is the number of columns between progress updates.
const progressEvery = 64

// Request describes one import.
type Request struct {
	File    string // archive name, used to tell zip from a bare .mca
	Archive []byte
	Region  *voxel.Region
	Rules   []Rule
	// Fallback maps names no rule matches. Without it they fail the import.
	Fallback *voxel.BlockID
}

// Kind tells message types apart.
type Kind uint8

const (
	Update Kind = iota
	Failure
	Success
)

func (k Kind) String() string {
	switch k {
	case Update:
		return "update"
	case Failure:
		return "failure"
	case Success:
		return "success"
	}
	return "?"
}

// Message is sent from the worker. Failure and Success are terminal.
type Message struct {
	Kind    Kind
	Text    string
	Err     error    // Failure only
	Terrain *Terrain // Success only
}

// Job is a running import.
type Job struct {
	messages chan Message
	cancel   context.CancelFunc
	done     chan struct{}
}

// Start validates the request and launches the worker. Rule errors are
// returned here and no worker is started.
func Start(ctx context.Context, req Request, reg *blocks.Registry) (*Job, error) {
	rules, err := CompileRules(req.Rules, req.Fallback, reg)
	if err != nil {
		return nil, err
	}
	if len(req.Archive) == 0 {
		return nil, &ValidationError{Field: "archive", Value: req.File, Reason: "empty"}
	}
	var region *voxel.Region
	if req.Region != nil {
		r := req.Region.Normalize()
		region = &r
	}

	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		messages: make(chan Message, 16),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	w := &worker{
		ctx:     ctx,
		out:     j.messages,
		file:    req.File,
		archive: req.Archive,
		region:  region,
		rules:   rules,
		log:     logger.Named("import"),
	}
	go func() {
		defer close(j.done)
		defer close(j.messages)
		w.run()
	}()
	return j, nil
}

// Messages delivers updates and exactly one terminal message, then closes.
// Nothing is delivered after Close.
func (j *Job) Messages() <-chan Message {
	return j.messages
}

// Close stops listening. A result not yet received is discarded.
func (j *Job) Close() {
	j.cancel()
	for range j.messages {
	}
	<-j.done
}

// Run executes an import synchronously and returns its terrain.
func Run(ctx context.Context, req Request, reg *blocks.Registry, progress func(string)) (*Terrain, error) {
	j, err := Start(ctx, req, reg)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	for m := range j.Messages() {
		switch m.Kind {
		case Update:
			if progress != nil {
				progress(m.Text)
			}
		case Failure:
			return nil, m.Err
		case Success:
			return m.Terrain, nil
		}
	}
	return nil, context.Canceled
}

type worker struct {
	ctx     context.Context
	out     chan<- Message
	file    string
	archive []byte
	region  *voxel.Region
	rules   *RuleSet
	log     *zap.Logger

	resolved map[string]voxel.BlockID
}

func (w *worker) send(m Message) bool {
	select {
	case w.out <- m:
		return true
	case <-w.ctx.Done():
		return false
	}
}

func (w *worker) update(format string, args ...any) bool {
	return w.send(Message{Kind: Update, Text: fmt.Sprintf(format, args...)})
}

func (w *worker) run() {
	start := time.Now()
	t, err := w.convert()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.log.Error("import failed", zap.String("file", w.file), zap.Error(err))
		w.send(Message{Kind: Failure, Text: err.Error(), Err: err})
		return
	}
	w.log.Info("import finished",
		zap.String("file", w.file),
		zap.Int("columns", t.Columns),
		zap.Int("blocks", t.Len()),
		zap.Duration("took", time.Since(start)))
	w.send(Message{
		Kind:    Success,
		Text:    fmt.Sprintf("imported %s blocks", humanize.Comma(int64(t.Len()))),
		Terrain: t,
	})
}

// columnRange is the inclusive chunk column range covered by the region.
type columnRange struct {
	minX, minZ, maxX, maxZ int
}

func (c columnRange) contains(x, z int) bool {
	return x >= c.minX && x <= c.maxX && z >= c.minZ && z <= c.maxZ
}

func (c columnRange) overlapsRegion(rx, rz int) bool {
	return rx*32 <= c.maxX && rx*32+31 >= c.minX && rz*32 <= c.maxZ && rz*32+31 >= c.minZ
}

func (w *worker) convert() (*Terrain, error) {
	if !w.update("reading %s (%s)", w.file, humanize.Bytes(uint64(len(w.archive)))) {
		return nil, context.Canceled
	}
	files, err := mcworld.ReadArchive(w.file, w.archive)
	if err != nil {
		return nil, err
	}

	var cols *columnRange
	if w.region != nil {
		cols = &columnRange{
			minX: voxel.FloorDiv(w.region.Min.X, voxel.ChunkSize),
			minZ: voxel.FloorDiv(w.region.Min.Z, voxel.ChunkSize),
			maxX: voxel.FloorDiv(w.region.Max.X, voxel.ChunkSize),
			maxZ: voxel.FloorDiv(w.region.Max.Z, voxel.ChunkSize),
		}
	}

	w.resolved = make(map[string]voxel.BlockID)
	seen := make(map[[2]int]bool)
	var (
		placements []chunk.Placement
		loaded     columnRange
		columns    int
	)

	for _, rf := range files {
		if cols != nil && rf.HasPos && !cols.overlapsRegion(rf.X, rf.Z) {
			continue
		}
		if !w.update("region %s", rf.Name) {
			return nil, context.Canceled
		}
		r, err := mcworld.OpenRegion(rf)
		if err != nil {
			return nil, err
		}

		for lx := 0; lx < 32; lx++ {
			for lz := 0; lz < 32; lz++ {
				if w.ctx.Err() != nil {
					r.Close()
					return nil, context.Canceled
				}
				if !r.Has(lx, lz) {
					continue
				}
				if cols != nil && rf.HasPos && !cols.contains(rf.X*32+lx, rf.Z*32+lz) {
					continue
				}
				col, err := r.ReadColumn(lx, lz)
				if err != nil {
					r.Close()
					return nil, err
				}
				key := [2]int{col.X, col.Z}
				if seen[key] || (cols != nil && !cols.contains(col.X, col.Z)) {
					continue
				}
				seen[key] = true

				placements, err = w.appendColumn(placements, col)
				if err != nil {
					r.Close()
					return nil, err
				}
				if columns == 0 {
					loaded = columnRange{minX: col.X, maxX: col.X, minZ: col.Z, maxZ: col.Z}
				} else {
					loaded.minX, loaded.maxX = min(loaded.minX, col.X), max(loaded.maxX, col.X)
					loaded.minZ, loaded.maxZ = min(loaded.minZ, col.Z), max(loaded.maxZ, col.Z)
				}
				columns++
				if columns%progressEvery == 0 {
					if !w.update("%d columns read, %s blocks", columns, humanize.Comma(int64(len(placements)))) {
						r.Close()
						return nil, context.Canceled
					}
				}
			}
		}
		r.Close()
	}

	if columns == 0 {
		return nil, errors.New("no chunks found in the selected area")
	}

	off := w.offset(loaded)
	for i := range placements {
		placements[i].Pos = placements[i].Pos.Add(-off.X, -off.Y, -off.Z)
	}
	return newTerrain(placements, columns), nil
}

// offset is subtracted from every position so the result sits around the
// origin: the region's horizontal centre and floor, or the horizontal
// centre of the loaded columns.
func (w *worker) offset(loaded columnRange) voxel.Pos {
	if w.region != nil {
		r := w.region
		return voxel.Pos{
			X: r.Min.X + (r.Max.X-r.Min.X)/2,
			Y: r.Min.Y,
			Z: r.Min.Z + (r.Max.Z-r.Min.Z)/2,
		}
	}
	minX, maxX := loaded.minX*voxel.ChunkSize, loaded.maxX*voxel.ChunkSize+voxel.ChunkSize-1
	minZ, maxZ := loaded.minZ*voxel.ChunkSize, loaded.maxZ*voxel.ChunkSize+voxel.ChunkSize-1
	return voxel.Pos{X: minX + (maxX-minX)/2, Z: minZ + (maxZ-minZ)/2}
}

func (w *worker) appendColumn(dst []chunk.Placement, col *mcworld.Column) ([]chunk.Placement, error) {
	var err error
	col.Each(func(x, y, z int, name string) {
		if err != nil {
			return
		}
		p := voxel.Pos{X: x, Y: y, Z: z}
		if w.region != nil && !w.region.Contains(p) {
			return
		}
		id, ok := w.resolved[name]
		if !ok {
			id, ok = w.rules.Resolve(name)
			if !ok {
				err = &ValidationError{Field: "block", Value: name, Reason: "no import rule matches"}
				return
			}
			w.resolved[name] = id
		}
		if id == voxel.Empty {
			return
		}
		dst = append(dst, chunk.Placement{Pos: p, Voxel: voxel.Of(id)})
	})
	return dst, err
}
