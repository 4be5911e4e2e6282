package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/logger"
)

// LoadResult is the outcome of LoadProject. On error nothing else is set.
type LoadResult struct {
	Project  Project
	Chunks   []chunk.Snapshot
	Entities []Entity
	Settings map[string][]byte
	Err      error
}

// ChunkResult is the outcome of LoadChunk.
type ChunkResult struct {
	Coord    voxel.ChunkCoord
	Snapshot chunk.Snapshot
	Found    bool
	Err      error
}

// Flushed identifies the exact chunk version that reached storage.
type Flushed struct {
	Coord   voxel.ChunkCoord
	Version uint64
}

// FlushResult is the outcome of Flush. Written is empty on error.
type FlushResult struct {
	Project string
	Written []Flushed
	Bytes   int
	Err     error
}

// Bridge runs storage operations off the frame loop. Every call returns a
// buffered channel that receives exactly one result.
type Bridge struct {
	backend  Backend
	flushing *semaphore.Weighted
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewBridge wraps a backend.
func NewBridge(b Backend) *Bridge {
	return &Bridge{
		backend:  b,
		flushing: semaphore.NewWeighted(1),
		log:      logger.Named("persistence"),
	}
}

// Backend returns the underlying store.
func (b *Bridge) Backend() Backend {
	return b.backend
}

func (b *Bridge) goAsync(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// CreateProject allocates and stores a new empty project.
func (b *Bridge) CreateProject(ctx context.Context, name string) (Project, error) {
	p := NewProject(name)
	if err := b.backend.PutProject(ctx, p); err != nil {
		return Project{}, wrapIO("create project", err)
	}
	b.log.Info("project created", zap.String("id", p.ID), zap.String("name", name))
	return p, nil
}

// LoadProject reads and decodes a whole project. The result is staged in
// full; a single bad record fails the load.
func (b *Bridge) LoadProject(ctx context.Context, id string) <-chan LoadResult {
	out := make(chan LoadResult, 1)
	b.goAsync(func() {
		start := time.Now()
		res := b.loadProject(ctx, id)
		if res.Err != nil {
			b.log.Error("project load failed", zap.String("id", id), zap.Error(res.Err))
		} else {
			b.log.Info("project loaded",
				zap.String("id", id),
				zap.Int("chunks", len(res.Chunks)),
				zap.Int("entities", len(res.Entities)),
				zap.Duration("took", time.Since(start)))
		}
		out <- res
	})
	return out
}

func (b *Bridge) loadProject(ctx context.Context, id string) LoadResult {
	p, err := b.backend.Project(ctx, id)
	if err != nil {
		return LoadResult{Err: wrapIO("load project", err)}
	}

	recs, err := b.backend.ReadChunks(ctx, id)
	if err != nil {
		return LoadResult{Err: wrapIO("load chunks", err)}
	}
	snaps := make([]chunk.Snapshot, 0, len(recs))
	for _, r := range recs {
		snap, err := DecodeChunk(r.Coord, r.Data)
		if err != nil {
			return LoadResult{Err: &CorruptDataError{Project: id, Record: "chunk " + r.Coord.String(), Err: err}}
		}
		snaps = append(snaps, snap)
	}

	env, err := b.backend.ReadEnvironment(ctx, id)
	if err != nil {
		return LoadResult{Err: wrapIO("load environment", err)}
	}
	var ents []Entity
	if len(env) > 0 {
		if err := json.Unmarshal(env, &ents); err != nil {
			return LoadResult{Err: &CorruptDataError{Project: id, Record: "environment", Err: err}}
		}
	}

	settings, err := b.backend.ReadSettings(ctx, id)
	if err != nil {
		return LoadResult{Err: wrapIO("load settings", err)}
	}
	return LoadResult{Project: p, Chunks: snaps, Entities: ents, Settings: settings}
}

// LoadChunk reads one chunk. A missing record is not an error.
func (b *Bridge) LoadChunk(ctx context.Context, project string, c voxel.ChunkCoord) <-chan ChunkResult {
	out := make(chan ChunkResult, 1)
	b.goAsync(func() {
		res := ChunkResult{Coord: c}
		data, ok, err := b.backend.ReadChunk(ctx, project, c)
		switch {
		case err != nil:
			res.Err = wrapIO("load chunk", err)
		case ok:
			res.Snapshot, err = DecodeChunk(c, data)
			if err != nil {
				res.Err = &CorruptDataError{Project: project, Record: "chunk " + c.String(), Err: err}
			} else {
				res.Found = true
			}
		}
		out <- res
	})
	return out
}

// Flush writes the given snapshots. Empty snapshots delete their record.
// Only one flush runs at a time; a second call while one is in flight
// returns ErrFlushInFlight.
func (b *Bridge) Flush(ctx context.Context, project string, snaps []chunk.Snapshot) (<-chan FlushResult, error) {
	if !b.flushing.TryAcquire(1) {
		return nil, ErrFlushInFlight
	}
	out := make(chan FlushResult, 1)
	b.goAsync(func() {
		defer b.flushing.Release(1)
		start := time.Now()
		res := b.flush(ctx, project, snaps)
		if res.Err != nil {
			b.log.Warn("flush failed, dirty chunks kept",
				zap.String("project", project),
				zap.Int("chunks", len(snaps)),
				zap.Error(res.Err))
		} else {
			b.log.Debug("flushed",
				zap.String("project", project),
				zap.Int("chunks", len(res.Written)),
				zap.String("size", humanize.Bytes(uint64(res.Bytes))),
				zap.Duration("took", time.Since(start)))
		}
		out <- res
	})
	return out, nil
}

func (b *Bridge) flush(ctx context.Context, project string, snaps []chunk.Snapshot) FlushResult {
	res := FlushResult{Project: project}
	recs := make([]Record, 0, len(snaps))
	written := make([]Flushed, 0, len(snaps))
	for _, s := range snaps {
		rec := Record{Coord: s.Coord}
		if !s.Empty() {
			data, err := EncodeChunk(s)
			if err != nil {
				res.Err = err
				return res
			}
			rec.Data = data
			res.Bytes += len(data)
		}
		recs = append(recs, rec)
		written = append(written, Flushed{Coord: s.Coord, Version: s.Version})
	}
	if err := b.backend.WriteChunks(ctx, project, recs); err != nil {
		res.Err = wrapIO("flush", err)
		res.Bytes = 0
		return res
	}
	res.Written = written
	return res
}

// Flushing reports whether a flush is in flight.
func (b *Bridge) Flushing() bool {
	if b.flushing.TryAcquire(1) {
		b.flushing.Release(1)
		return false
	}
	return true
}

// SaveEnvironment replaces the environment record.
func (b *Bridge) SaveEnvironment(ctx context.Context, project string, ents []Entity) <-chan error {
	out := make(chan error, 1)
	b.goAsync(func() {
		data, err := json.Marshal(ents)
		if err == nil {
			err = b.backend.WriteEnvironment(ctx, project, data)
		}
		out <- wrapIO("save environment", err)
	})
	return out
}

// SaveSetting stores one opaque setting value.
func (b *Bridge) SaveSetting(ctx context.Context, project, key string, value []byte) <-chan error {
	out := make(chan error, 1)
	b.goAsync(func() {
		out <- wrapIO("save setting", b.backend.WriteSetting(ctx, project, key, value))
	})
	return out
}

// Wait blocks until every pending operation has delivered its result.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Close waits for pending operations and closes the backend.
func (b *Bridge) Close() error {
	b.wg.Wait()
	return b.backend.Close()
}
