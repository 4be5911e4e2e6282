// Package scheduler decides each frame which chunks are loaded, meshed or unloaded.
package scheduler

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/terrain"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/logger"
)

// State is the lifecycle state of a chunk.
type State uint8

const (
	Unloaded State = iota
	Loading
	Meshed
	Dirty
	Unloading
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Meshed:
		return "meshed"
	case Dirty:
		return "dirty"
	case Unloading:
		return "unloading"
	}
	return "?"
}

// Store is the chunk storage the scheduler drives.
type Store interface {
	Chunk(coord voxel.ChunkCoord) (*chunk.Chunk, bool)
	Neighbors(coord voxel.ChunkCoord) [6]*chunk.Chunk
	Coords() []voxel.ChunkCoord
	TakeStale() []voxel.ChunkCoord
	Evict(coord voxel.ChunkCoord) bool
	Park(coords ...voxel.ChunkCoord)
	Unpark(coord voxel.ChunkCoord)
	Parked() []voxel.ChunkCoord
	SetFrame(frame uint64)
}

// Mesher builds geometry for a chunk.
type Mesher interface {
	Build(c *chunk.Chunk, nb [6]*chunk.Chunk) *terrain.Mesh
}

// Loader fetches persisted chunks asynchronously. Results come back through
// Scheduler.ChunkLoaded on the frame loop.
type Loader interface {
	RequestChunk(coord voxel.ChunkCoord)
}

// Uploader owns GPU resources for chunk meshes.
type Uploader interface {
	UploadChunk(m *terrain.Mesh) error
	ReleaseChunk(coord voxel.ChunkCoord)
}

// Flusher persists dirty chunks asynchronously.
type Flusher interface {
	RequestFlush()
}

// Config holds the tunables of the scheduler.
type Config struct {
	ViewDistance       float32
	MaxMeshesPerFrame  int
	Occlusion          bool
	OcclusionThreshold float32
}

// DefaultConfig returns the default scheduler settings.
func DefaultConfig() Config {
	return Config{
		ViewDistance:       96,
		MaxMeshesPerFrame:  8,
		Occlusion:          true,
		OcclusionThreshold: 1,
	}
}

type entry struct {
	state    State
	occluded bool
	mesh     *terrain.Mesh
}

// Stats summarises the scheduler after a tick.
type Stats struct {
	Frame     uint64
	Tracked   int
	Loading   int
	Meshed    int
	Dirty     int
	Unloading int
	Occluded  int
	Built     int
}

// Scheduler runs the per-chunk state machine. It is driven from the frame
// loop and never blocks.
type Scheduler struct {
	cfg      Config
	store    Store
	reg      *blocks.Registry
	mesher   Mesher
	loader   Loader
	uploader Uploader
	flusher  Flusher
	log      *zap.Logger

	entries map[voxel.ChunkCoord]*entry
	frame   uint64
	camera  mgl32.Vec3
}

// New creates a scheduler. loader, uploader and flusher may be nil.
func New(cfg Config, store Store, reg *blocks.Registry, mesher Mesher, loader Loader, uploader Uploader, flusher Flusher) *Scheduler {
	if cfg.MaxMeshesPerFrame <= 0 {
		cfg.MaxMeshesPerFrame = 1
	}
	cfg.OcclusionThreshold = clamp01(cfg.OcclusionThreshold)
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		reg:      reg,
		mesher:   mesher,
		loader:   loader,
		uploader: uploader,
		flusher:  flusher,
		log:      logger.Named("scheduler"),
		entries:  make(map[voxel.ChunkCoord]*entry),
	}
}

func clamp01(f float32) float32 {
	return mgl32.Clamp(f, 0, 1)
}

// Config returns the current settings.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// SetViewDistance changes the streaming radius. It takes effect on the next tick.
func (s *Scheduler) SetViewDistance(d float32) {
	if d < 0 {
		d = 0
	}
	s.cfg.ViewDistance = d
}

// SetOcclusion toggles the occlusion heuristic and its threshold, then
// re-evaluates every resident chunk.
func (s *Scheduler) SetOcclusion(enabled bool, threshold float32) {
	threshold = clamp01(threshold)
	if s.cfg.Occlusion == enabled && s.cfg.OcclusionThreshold == threshold {
		return
	}
	s.cfg.Occlusion = enabled
	s.cfg.OcclusionThreshold = threshold
	s.RemeshAll()
}

// SetMaxMeshesPerFrame bounds mesh builds per tick.
func (s *Scheduler) SetMaxMeshesPerFrame(n int) {
	if n > 0 {
		s.cfg.MaxMeshesPerFrame = n
	}
}

// Track records chunks that exist in storage but are not resident. They are
// loaded once they come within the view distance.
func (s *Scheduler) Track(coords []voxel.ChunkCoord) {
	s.store.Park(coords...)
}

// Reset forgets every chunk and releases GPU resources. Used when the world
// is replaced wholesale.
func (s *Scheduler) Reset() {
	for c := range s.entries {
		s.release(c)
	}
	clear(s.entries)
}

// State returns the lifecycle state of a chunk.
func (s *Scheduler) State(c voxel.ChunkCoord) State {
	if e, ok := s.entries[c]; ok {
		return e.state
	}
	return Unloaded
}

// Occluded reports whether a chunk is currently culled by the occlusion heuristic.
func (s *Scheduler) Occluded(c voxel.ChunkCoord) bool {
	e, ok := s.entries[c]
	return ok && e.occluded
}

// Mesh returns the cached mesh of a chunk.
func (s *Scheduler) Mesh(c voxel.ChunkCoord) *terrain.Mesh {
	if e, ok := s.entries[c]; ok {
		return e.mesh
	}
	return nil
}

// Visible returns the coordinates of meshed, non-occluded chunks with geometry, sorted.
func (s *Scheduler) Visible() []voxel.ChunkCoord {
	var out []voxel.ChunkCoord
	for c, e := range s.entries {
		if (e.state == Meshed || e.state == Dirty) && !e.occluded && !e.mesh.Empty() {
			out = append(out, c)
		}
	}
	sortCoords(out)
	return out
}

// RemeshAll marks every loaded chunk for a rebuild.
func (s *Scheduler) RemeshAll() {
	for _, e := range s.entries {
		if e.state == Meshed {
			e.state = Dirty
		}
	}
}

// Remesh marks the given chunks for a rebuild.
func (s *Scheduler) Remesh(coords []voxel.ChunkCoord) {
	for _, c := range coords {
		if e, ok := s.entries[c]; ok && e.state == Meshed {
			e.state = Dirty
		}
	}
}

// ChunkLoaded completes a load started through the Loader. found is false
// when storage had no record, in which case the chunk is empty.
func (s *Scheduler) ChunkLoaded(c voxel.ChunkCoord, found bool) {
	if !found {
		s.store.Unpark(c)
	}
	e, ok := s.entries[c]
	if !ok {
		return
	}
	switch e.state {
	case Loading:
		e.state = Dirty
	case Unloading:
		s.unload(c, e)
	}
}

// LoadFailed returns a chunk to Unloaded so it is requested again later.
func (s *Scheduler) LoadFailed(c voxel.ChunkCoord) {
	if e, ok := s.entries[c]; ok && (e.state == Loading || e.state == Unloading) {
		delete(s.entries, c)
	}
}

func (s *Scheduler) inRange(c voxel.ChunkCoord) bool {
	return s.distance(c) <= s.cfg.ViewDistance
}

func (s *Scheduler) distance(c voxel.ChunkCoord) float32 {
	center := c.Center()
	return mgl32.Vec3{center[0], center[1], center[2]}.Sub(s.camera).Len()
}

// Tick advances the state machine by one frame.
func (s *Scheduler) Tick(camera mgl32.Vec3) Stats {
	s.frame++
	s.camera = camera
	s.store.SetFrame(s.frame)

	for _, c := range s.store.TakeStale() {
		e, ok := s.entries[c]
		if !ok {
			s.entries[c] = &entry{state: Dirty}
			continue
		}
		if e.state == Meshed {
			e.state = Dirty
		}
	}

	s.stream()
	built := s.buildMeshes()
	s.drainUnloading()

	st := s.stats()
	st.Built = built
	return st
}

// stream moves chunks in and out of the view distance.
func (s *Scheduler) stream() {
	resident := s.store.Coords()
	for _, c := range resident {
		if _, ok := s.entries[c]; !ok {
			s.entries[c] = &entry{state: Dirty}
		}
	}
	for _, c := range s.store.Parked() {
		if _, ok := s.entries[c]; ok || !s.inRange(c) {
			continue
		}
		if s.loader == nil {
			s.store.Unpark(c)
			continue
		}
		s.entries[c] = &entry{state: Loading}
		s.loader.RequestChunk(c)
	}

	for c, e := range s.entries {
		in := s.inRange(c)
		switch {
		case !in && e.state != Unloading:
			e.state = Unloading
			s.release(c)
			e.mesh = nil
			e.occluded = false
		case in && e.state == Unloading:
			if _, ok := s.store.Chunk(c); ok {
				e.state = Dirty
			}
		}
	}
}

// buildMeshes rebuilds up to the per-frame budget of dirty chunks, nearest first.
func (s *Scheduler) buildMeshes() int {
	var queue []voxel.ChunkCoord
	for c, e := range s.entries {
		if e.state == Dirty {
			queue = append(queue, c)
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		di, dj := s.distance(queue[i]), s.distance(queue[j])
		if di != dj {
			return di < dj
		}
		return queue[i].Less(queue[j])
	})

	built := 0
	for _, c := range queue {
		if built >= s.cfg.MaxMeshesPerFrame {
			break
		}
		e := s.entries[c]
		ch, ok := s.store.Chunk(c)
		if !ok {
			s.release(c)
			delete(s.entries, c)
			continue
		}

		if s.cfg.Occlusion && s.occluded(c) {
			if !e.occluded {
				s.release(c)
			}
			e.occluded = true
			e.mesh = nil
			e.state = Meshed
			continue
		}
		e.occluded = false

		m := s.mesher.Build(ch, s.store.Neighbors(c))
		built++
		if s.uploader != nil {
			if err := s.uploader.UploadChunk(m); err != nil {
				s.log.Warn("chunk upload failed, will retry",
					zap.Stringer("chunk", c),
					zap.Error(err))
				continue
			}
		}
		e.mesh = m
		e.state = Meshed
	}
	return built
}

// drainUnloading evicts chunks that left the view distance once they are clean.
func (s *Scheduler) drainUnloading() {
	flushNeeded := false
	for c, e := range s.entries {
		if e.state != Unloading {
			continue
		}
		ch, ok := s.store.Chunk(c)
		if ok && ch.Dirty() {
			flushNeeded = true
			continue
		}
		s.unload(c, e)
	}
	if flushNeeded && s.flusher != nil {
		s.flusher.RequestFlush()
	}
}

func (s *Scheduler) unload(c voxel.ChunkCoord, e *entry) {
	if !s.store.Evict(c) {
		return
	}
	s.release(c)
	delete(s.entries, c)
}

func (s *Scheduler) release(c voxel.ChunkCoord) {
	if s.uploader != nil {
		s.uploader.ReleaseChunk(c)
	}
}

func (s *Scheduler) stats() Stats {
	st := Stats{Frame: s.frame, Tracked: len(s.entries)}
	for _, e := range s.entries {
		switch e.state {
		case Loading:
			st.Loading++
		case Meshed:
			st.Meshed++
		case Dirty:
			st.Dirty++
		case Unloading:
			st.Unloading++
		}
		if e.occluded {
			st.Occluded++
		}
	}
	return st
}

func sortCoords(cs []voxel.ChunkCoord) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}
