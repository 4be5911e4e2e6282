// Package editor is the engine facade the user interface drives. Every
// method runs on the frame loop; storage and import work happen on their own
// goroutines and their results are collected by Update.
package editor

import (
	"context"
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/config"
	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/history"
	"github.com/Faultbox/blockforge/internal/engine/instancing"
	"github.com/Faultbox/blockforge/internal/engine/scheduler"
	"github.com/Faultbox/blockforge/internal/engine/terrain"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/importer"
	"github.com/Faultbox/blockforge/internal/logger"
	"github.com/Faultbox/blockforge/internal/persistence"
	"github.com/Faultbox/blockforge/internal/telemetry"
)

var (
	// ErrBusy is returned for edits while an import or project load is in flight.
	ErrBusy = errors.New("engine busy: import, project load or chunk load in progress")
	// ErrNoProject is returned by storage operations before a project is open.
	ErrNoProject = errors.New("no project open")
	// ErrNoStore is returned when the engine runs without persistence.
	ErrNoStore = errors.New("persistence disabled")
)

// Settings are the user-tunable engine switches, persisted per project.
type Settings struct {
	Instancing         bool    `json:"instancing"`
	GreedyMeshing      bool    `json:"greedy_meshing"`
	ViewDistance       int     `json:"view_distance"`
	SelectionDistance  int     `json:"selection_distance"`
	OcclusionCulling   bool    `json:"occlusion_culling"`
	OcclusionThreshold float32 `json:"occlusion_threshold"`
	AutoSave           bool    `json:"autosave"`
}

// Options wires the engine to its collaborators.
type Options struct {
	Config   *config.Config
	Registry *blocks.Registry
	Bridge   *persistence.Bridge // nil runs without persistence
	Uploader scheduler.Uploader  // nil when headless
	Metrics  *telemetry.Metrics  // optional
}

// Engine owns the world and every frame-loop component around it.
type Engine struct {
	cfg      *config.Config
	reg      *blocks.Registry
	store    *chunk.Store
	pool     *instancing.Pool
	builder  *terrain.Builder
	sched    *scheduler.Scheduler
	history  *history.History
	bridge   *persistence.Bridge
	frames   *telemetry.FrameStats
	metrics  *telemetry.Metrics
	sampler  *telemetry.ProcessSampler
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	settings Settings
	events   observers

	project  string
	entities []persistence.Entity

	loading    <-chan persistence.LoadResult
	loadingID  string
	job        *importer.Job
	chunkLoads map[voxel.ChunkCoord]<-chan persistence.ChunkResult
	flushing   <-chan persistence.FlushResult
	pending    *deferred

	settingsWrite pendingWrite
	envWrite      pendingWrite

	flushRequested bool
	flushFailures  int
	autosaveAt     time.Time
	lastFrame      time.Time
	lastStats      scheduler.Stats
}

// New builds an engine with an empty world and no project open.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = blocks.NewDefaultRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		reg:        reg,
		bridge:     opts.Bridge,
		metrics:    opts.Metrics,
		log:        logger.Named("editor"),
		ctx:        ctx,
		cancel:     cancel,
		chunkLoads: make(map[voxel.ChunkCoord]<-chan persistence.ChunkResult),
		settings: Settings{
			Instancing:         cfg.Engine.Instancing,
			GreedyMeshing:      cfg.Engine.GreedyMeshing,
			ViewDistance:       cfg.Engine.ViewDistance,
			SelectionDistance:  cfg.Engine.SelectionDistance,
			OcclusionCulling:   cfg.Engine.OcclusionCulling,
			OcclusionThreshold: cfg.Engine.OcclusionThreshold,
			AutoSave:           cfg.Persistence.AutoSave,
		},
	}

	lim := cfg.Engine.WorldLimit
	e.store = chunk.NewStore(chunk.Limits{
		Min: voxel.Pos{X: lim.Min[0], Y: lim.Min[1], Z: lim.Min[2]},
		Max: voxel.Pos{X: lim.Max[0], Y: lim.Max[1], Z: lim.Max[2]},
	})
	e.pool = instancing.NewPool(reg, e.settings.Instancing)
	e.store.Observe(e.pool)
	e.builder = terrain.NewBuilder(reg, e.meshOptions())
	e.history = history.New(history.Config{
		MaxBatches: cfg.History.MaxBatches,
		MaxBytes:   int(cfg.History.MaxBytes),
	})

	var loader scheduler.Loader
	if e.bridge != nil {
		loader = e
	}
	e.sched = scheduler.New(scheduler.Config{
		ViewDistance:       float32(e.settings.ViewDistance),
		MaxMeshesPerFrame:  cfg.Engine.MaxMeshesPerFrame,
		Occlusion:          e.settings.OcclusionCulling,
		OcclusionThreshold: e.settings.OcclusionThreshold,
	}, e.store, reg, e.builder, loader, opts.Uploader, e)

	e.frames = telemetry.NewFrameStats(cfg.Telemetry.Window)
	if s, err := telemetry.NewProcessSampler(time.Second); err != nil {
		e.log.Warn("process stats unavailable", zap.Error(err))
	} else {
		e.sampler = s
	}
	return e
}

func (e *Engine) meshOptions() terrain.Options {
	return terrain.Options{
		Greedy:        e.settings.GreedyMeshing,
		SkipInstanced: e.settings.Instancing,
	}
}

// Store returns the chunk store. Callers must not mutate it directly.
func (e *Engine) Store() *chunk.Store { return e.store }

// Registry returns the block registry.
func (e *Engine) Registry() *blocks.Registry { return e.reg }

// Scheduler returns the render scheduler, for drawing.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.sched }

// Pool returns the instance pool, for drawing.
func (e *Engine) Pool() *instancing.Pool { return e.pool }

// Project returns the id of the open project, or "".
func (e *Engine) Project() string { return e.project }

// Subscribe registers a listener and returns a func that removes it.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	return e.events.subscribe(l)
}

func (e *Engine) publish(ev Event) {
	e.events.publish(ev)
}

// Busy reports whether an import or project load is in flight.
func (e *Engine) Busy() bool {
	return e.loading != nil || e.job != nil || e.pending != nil
}

func (e *Engine) busyChanged() {
	e.publish(Event{Kind: EventBusyChanged, Busy: e.Busy()})
}

// Settings returns the current switches.
func (e *Engine) Settings() Settings {
	return e.settings
}

// ToggleInstancing moves eligible blocks between the instance renderer and
// chunk meshes. Block counts are unaffected.
func (e *Engine) ToggleInstancing(enabled bool) {
	if e.settings.Instancing == enabled {
		return
	}
	e.settings.Instancing = enabled
	e.builder.SetOptions(e.meshOptions())
	for _, c := range e.pool.SetEnabled(enabled) {
		e.store.MarkStale(c)
	}
	e.settingsChanged()
}

// InstancingEnabled reports whether instancing is on.
func (e *Engine) InstancingEnabled() bool {
	return e.settings.Instancing
}

// ToggleGreedyMeshing switches between merged and per-face quads and
// re-meshes every resident chunk.
func (e *Engine) ToggleGreedyMeshing(enabled bool) {
	if e.settings.GreedyMeshing == enabled {
		return
	}
	e.settings.GreedyMeshing = enabled
	e.builder.SetOptions(e.meshOptions())
	e.sched.RemeshAll()
	e.settingsChanged()
}

// GreedyMeshingEnabled reports whether greedy meshing is on.
func (e *Engine) GreedyMeshingEnabled() bool {
	return e.settings.GreedyMeshing
}

// SetViewDistance sets the streaming radius in blocks, at least 1.
func (e *Engine) SetViewDistance(blocks int) {
	blocks = max(blocks, 1)
	if e.settings.ViewDistance == blocks {
		return
	}
	e.settings.ViewDistance = blocks
	e.sched.SetViewDistance(float32(blocks))
	e.settingsChanged()
}

// ViewDistance returns the streaming radius in blocks.
func (e *Engine) ViewDistance() int {
	return e.settings.ViewDistance
}

// SetSelectionDistance sets how far Pick reaches, at least 1.
func (e *Engine) SetSelectionDistance(blocks int) {
	blocks = max(blocks, 1)
	if e.settings.SelectionDistance == blocks {
		return
	}
	e.settings.SelectionDistance = blocks
	e.settingsChanged()
}

// SelectionDistance returns how far Pick reaches in blocks.
func (e *Engine) SelectionDistance() int {
	return e.settings.SelectionDistance
}

// ToggleOcclusionCulling switches the occlusion heuristic.
func (e *Engine) ToggleOcclusionCulling(enabled bool) {
	if e.settings.OcclusionCulling == enabled {
		return
	}
	e.settings.OcclusionCulling = enabled
	e.sched.SetOcclusion(enabled, e.settings.OcclusionThreshold)
	e.settingsChanged()
}

// OcclusionCullingEnabled reports whether the occlusion heuristic is on.
func (e *Engine) OcclusionCullingEnabled() bool {
	return e.settings.OcclusionCulling
}

// SetOcclusionThreshold sets the fraction of each boundary face that must be
// opaque for a chunk to be culled. It is clamped to [0,1].
func (e *Engine) SetOcclusionThreshold(fraction float32) {
	fraction = mgl32.Clamp(fraction, 0, 1)
	if e.settings.OcclusionThreshold == fraction {
		return
	}
	e.settings.OcclusionThreshold = fraction
	e.sched.SetOcclusion(e.settings.OcclusionCulling, fraction)
	e.settingsChanged()
}

// OcclusionThreshold returns the occlusion threshold.
func (e *Engine) OcclusionThreshold() float32 {
	return e.settings.OcclusionThreshold
}

// ToggleAutoSave switches the periodic flush of dirty chunks.
func (e *Engine) ToggleAutoSave(enabled bool) {
	if e.settings.AutoSave == enabled {
		return
	}
	e.settings.AutoSave = enabled
	e.autosaveAt = time.Time{}
	e.settingsChanged()
}

// AutoSaveEnabled reports whether autosave is on.
func (e *Engine) AutoSaveEnabled() bool {
	return e.settings.AutoSave
}

func (e *Engine) settingsChanged() {
	e.saveSettings()
	e.publish(Event{Kind: EventSettingsChanged, Settings: e.settings})
}

// applySettings replaces every switch at once, as after a project load.
func (e *Engine) applySettings(s Settings) {
	e.settings.GreedyMeshing = s.GreedyMeshing
	if s.ViewDistance > 0 {
		e.settings.ViewDistance = s.ViewDistance
	}
	if s.SelectionDistance > 0 {
		e.settings.SelectionDistance = s.SelectionDistance
	}
	e.settings.OcclusionCulling = s.OcclusionCulling
	e.settings.OcclusionThreshold = mgl32.Clamp(s.OcclusionThreshold, 0, 1)
	e.settings.AutoSave = s.AutoSave

	if e.settings.Instancing != s.Instancing {
		e.settings.Instancing = s.Instancing
		e.pool.SetEnabled(s.Instancing)
	}
	e.builder.SetOptions(e.meshOptions())
	e.sched.SetViewDistance(float32(e.settings.ViewDistance))
	e.sched.SetOcclusion(e.settings.OcclusionCulling, e.settings.OcclusionThreshold)
	e.sched.RemeshAll()
	e.publish(Event{Kind: EventSettingsChanged, Settings: e.settings})
}

// Update runs one frame: it collects finished background work, fires
// autosave and advances the scheduler. It never blocks.
func (e *Engine) Update(now time.Time, camera mgl32.Vec3) scheduler.Stats {
	if !e.lastFrame.IsZero() {
		e.frames.Frame(now.Sub(e.lastFrame))
	}
	e.lastFrame = now

	e.pollLoad()
	e.pollImport()
	e.pollChunks()
	e.pollPending()
	e.pollFlush()
	e.pollSaves()
	e.autosave(now)

	e.lastStats = e.sched.Tick(camera)
	if e.metrics != nil {
		e.metrics.Observe(e.Telemetry())
	}
	return e.lastStats
}

// Telemetry returns the debug read surface.
func (e *Engine) Telemetry() telemetry.Snapshot {
	s := telemetry.Snapshot{
		FPS:            e.frames.FPS(),
		FrameTime:      e.frames.FrameTime(),
		MaxFrameTime:   e.frames.MaxFrameTime(),
		TotalBlocks:    e.store.TotalBlocks(),
		Entities:       len(e.entities),
		ResidentChunks: e.store.Len(),
		MeshedChunks:   e.lastStats.Meshed,
	}
	if e.sampler != nil {
		s.RSS = e.sampler.RSS(e.lastFrame)
	}
	return s
}

// Close stops background work and writes remaining dirty chunks. The bridge
// itself is closed by its owner.
func (e *Engine) Close(ctx context.Context) error {
	if e.job != nil {
		e.job.Close()
		e.job = nil
	}
	e.dropPending()
	var err error
	if e.bridge != nil && e.project != "" {
		if e.flushing != nil {
			select {
			case res := <-e.flushing:
				e.flushDone(res)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = e.flushAndWait(ctx)
	}
	if e.bridge != nil {
		e.pollSaves()
		e.bridge.Wait()
	}
	e.cancel()
	logger.SetProject("", "")
	return err
}
