package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/logger"
	"github.com/Faultbox/blockforge/internal/persistence"
)

// settingsKey is the project setting holding the editor switches.
const settingsKey = "editor"

// CreateProject stores a new empty project and opens it. The current world is
// discarded.
func (e *Engine) CreateProject(ctx context.Context, name string) (persistence.Project, error) {
	if e.bridge == nil {
		return persistence.Project{}, ErrNoStore
	}
	if e.Busy() {
		return persistence.Project{}, ErrBusy
	}
	p, err := e.bridge.CreateProject(ctx, name)
	if err != nil {
		return persistence.Project{}, err
	}
	e.closeEdit()
	e.store.Clear()
	e.sched.Reset()
	e.history.Clear()
	clear(e.chunkLoads)
	e.entities = nil
	e.project = p.ID
	logger.SetProject(p.ID, p.Name)
	e.envWrite.dirty = false
	e.flushFailures = 0
	e.autosaveAt = time.Time{}
	e.saveSettings()
	return p, nil
}

// LoadProject starts loading a project. The live world is untouched until
// the whole project has been read; EventProjectLoaded or
// EventProjectLoadFailed reports the outcome.
func (e *Engine) LoadProject(id string) error {
	if e.bridge == nil {
		return ErrNoStore
	}
	if e.Busy() {
		return ErrBusy
	}
	e.closeEdit()
	e.loading = e.bridge.LoadProject(e.ctx, id)
	e.loadingID = id
	e.busyChanged()
	return nil
}

// RefreshTerrainFromDB reloads the open project from storage and re-meshes
// every resident chunk. Unflushed edits are lost.
func (e *Engine) RefreshTerrainFromDB() error {
	if e.project == "" {
		return ErrNoProject
	}
	if e.store.HasDirty() {
		e.log.Warn("refresh discards unflushed edits", zap.String("project", e.project))
	}
	return e.LoadProject(e.project)
}

// closeEdit seals an edit session left open across a world swap.
func (e *Engine) closeEdit() {
	if e.history.Open() {
		e.EndEdit()
	}
}

func (e *Engine) pollLoad() {
	if e.loading == nil {
		return
	}
	var res persistence.LoadResult
	select {
	case res = <-e.loading:
	default:
		return
	}
	e.loading = nil
	defer e.busyChanged()

	if res.Err == nil {
		res.Err = e.store.ReplaceAll(res.Chunks)
	}
	if res.Err != nil {
		e.publish(Event{
			Kind: EventProjectLoadFailed,
			Text: fmt.Sprintf("could not open project %s", e.loadingID),
			Err:  res.Err,
		})
		return
	}

	e.sched.Reset()
	e.history.Clear()
	clear(e.chunkLoads)
	e.entities = res.Entities
	e.project = res.Project.ID
	logger.SetProject(res.Project.ID, res.Project.Name)
	e.settingsWrite.dirty = false
	e.envWrite.dirty = false
	e.flushFailures = 0
	e.flushRequested = false
	e.autosaveAt = time.Time{}

	if raw, ok := res.Settings[settingsKey]; ok {
		var s Settings
		if err := json.Unmarshal(raw, &s); err != nil {
			e.log.Warn("ignoring unreadable editor settings", zap.Error(err))
		} else {
			e.applySettings(s)
		}
	}

	e.log.Info("project opened",
		zap.String("id", res.Project.ID),
		zap.String("name", res.Project.Name),
		zap.Int("blocks", e.store.TotalBlocks()))
	e.publish(Event{Kind: EventProjectLoaded, Text: res.Project.Name})
}

// RequestChunk loads a persisted chunk that re-entered the view distance.
func (e *Engine) RequestChunk(c voxel.ChunkCoord) {
	if e.bridge == nil || e.project == "" {
		e.sched.ChunkLoaded(c, false)
		return
	}
	if _, pending := e.chunkLoads[c]; pending {
		return
	}
	e.chunkLoads[c] = e.bridge.LoadChunk(e.ctx, e.project, c)
}

func (e *Engine) pollChunks() {
	for c, ch := range e.chunkLoads {
		var res persistence.ChunkResult
		select {
		case res = <-ch:
		default:
			continue
		}
		delete(e.chunkLoads, c)

		if res.Err != nil {
			e.log.Warn("chunk load failed", zap.Stringer("chunk", c), zap.Error(res.Err))
			e.sched.LoadFailed(c)
			e.abortPending(c, res.Err)
			continue
		}
		if res.Found {
			if _, resident := e.store.Chunk(c); !resident {
				if err := e.store.Load(res.Snapshot); err != nil {
					e.log.Warn("chunk install failed", zap.Stringer("chunk", c), zap.Error(err))
					e.sched.LoadFailed(c)
					e.abortPending(c, err)
					continue
				}
			}
		}
		e.sched.ChunkLoaded(c, res.Found)
	}
}

// RequestFlush is called by the scheduler when dirty chunks wait to unload.
// After a failed flush the next attempt waits for the autosave tick.
func (e *Engine) RequestFlush() {
	e.flushRequested = true
}

// Flush writes every dirty chunk of the open project in the background.
// It returns persistence.ErrFlushInFlight if a flush is already running.
func (e *Engine) Flush() error {
	if e.bridge == nil {
		return ErrNoStore
	}
	if e.project == "" {
		return ErrNoProject
	}
	if e.flushing != nil {
		return persistence.ErrFlushInFlight
	}
	snaps := e.store.DirtyChunks()
	if len(snaps) == 0 {
		return nil
	}
	ch, err := e.bridge.Flush(e.ctx, e.project, snaps)
	if err != nil {
		return err
	}
	e.flushing = ch
	return nil
}

func (e *Engine) flushAndWait(ctx context.Context) error {
	if err := e.Flush(); err != nil {
		return err
	}
	if e.flushing == nil {
		return nil
	}
	select {
	case res := <-e.flushing:
		e.flushDone(res)
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) pollFlush() {
	if e.flushing != nil {
		select {
		case res := <-e.flushing:
			e.flushDone(res)
		default:
		}
	}
	if e.flushRequested && e.flushing == nil && e.flushFailures == 0 && e.project != "" {
		e.flushRequested = false
		if err := e.Flush(); err != nil && !errors.Is(err, persistence.ErrFlushInFlight) {
			e.log.Warn("requested flush not started", zap.Error(err))
		}
	}
}

func (e *Engine) flushDone(res persistence.FlushResult) {
	e.flushing = nil
	if res.Project != e.project {
		return
	}
	if res.Err != nil {
		e.flushFailures++
		limit := e.cfg.Persistence.MaxFlushRetries
		if limit > 0 && e.flushFailures >= limit {
			e.log.Error("flush keeps failing",
				zap.String("project", e.project),
				zap.Int("attempts", e.flushFailures),
				zap.Error(res.Err))
			e.publish(Event{
				Kind: EventFlushFailed,
				Text: fmt.Sprintf("saving failed %d times in a row", e.flushFailures),
				Err:  res.Err,
			})
		}
		return
	}
	for _, f := range res.Written {
		e.store.MarkFlushed(f.Coord, f.Version)
	}
	e.flushFailures = 0
	e.publish(Event{Kind: EventFlushed, Text: fmt.Sprintf("%d chunks saved", len(res.Written))})
}

// FlushFailures returns the number of consecutive failed flushes.
func (e *Engine) FlushFailures() int {
	return e.flushFailures
}

func (e *Engine) autosave(now time.Time) {
	if !e.settings.AutoSave || e.bridge == nil || e.project == "" {
		return
	}
	if e.autosaveAt.IsZero() {
		e.autosaveAt = now.Add(e.cfg.Persistence.AutoSaveInterval)
		return
	}
	if now.Before(e.autosaveAt) {
		return
	}
	e.autosaveAt = now.Add(e.cfg.Persistence.AutoSaveInterval)
	if !e.store.HasDirty() {
		return
	}
	if err := e.Flush(); err != nil {
		if errors.Is(err, persistence.ErrFlushInFlight) {
			e.log.Debug("autosave skipped, flush in flight")
			return
		}
		e.log.Warn("autosave not started", zap.Error(err))
	}
}

// pendingWrite coalesces background writes of one record so they reach
// storage in order.
type pendingWrite struct {
	dirty    bool
	inflight <-chan error
}

func (w *pendingWrite) poll(log *zap.Logger, start func() <-chan error) {
	if w.inflight != nil {
		select {
		case err := <-w.inflight:
			w.inflight = nil
			if err != nil {
				log.Warn("background save failed", zap.Error(err))
			}
		default:
			return
		}
	}
	if w.dirty {
		w.dirty = false
		w.inflight = start()
	}
}

func (e *Engine) saveSettings() {
	if e.bridge != nil && e.project != "" {
		e.settingsWrite.dirty = true
	}
}

func (e *Engine) saveEnvironment() {
	if e.bridge != nil && e.project != "" {
		e.envWrite.dirty = true
	}
}

func (e *Engine) pollSaves() {
	project := e.project
	e.settingsWrite.poll(e.log, func() <-chan error {
		data, err := json.Marshal(e.settings)
		if err != nil {
			out := make(chan error, 1)
			out <- err
			return out
		}
		return e.bridge.SaveSetting(e.ctx, project, settingsKey, data)
	})
	e.envWrite.poll(e.log, func() <-chan error {
		return e.bridge.SaveEnvironment(e.ctx, project, e.Entities())
	})
}

// AddEntity places a non-block entity and saves the environment.
func (e *Engine) AddEntity(model string, pos [3]float32) (persistence.Entity, error) {
	if e.Busy() {
		return persistence.Entity{}, ErrBusy
	}
	ent := persistence.NewEntity(model, pos)
	e.entities = append(e.entities, ent)
	e.saveEnvironment()
	return ent, nil
}

// RemoveEntity deletes an entity. It reports whether one was removed.
func (e *Engine) RemoveEntity(id uuid.UUID) bool {
	for i, ent := range e.entities {
		if ent.ID == id {
			e.entities = append(e.entities[:i], e.entities[i+1:]...)
			e.saveEnvironment()
			return true
		}
	}
	return false
}

// Entities returns a copy of the placed entities.
func (e *Engine) Entities() []persistence.Entity {
	return append([]persistence.Entity(nil), e.entities...)
}

