package scheduler

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/terrain"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

type fakeUploader struct {
	uploads  map[voxel.ChunkCoord]int
	released map[voxel.ChunkCoord]int
	fail     map[voxel.ChunkCoord]bool
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		uploads:  make(map[voxel.ChunkCoord]int),
		released: make(map[voxel.ChunkCoord]int),
		fail:     make(map[voxel.ChunkCoord]bool),
	}
}

func (u *fakeUploader) UploadChunk(m *terrain.Mesh) error {
	if u.fail[m.Coord] {
		return errors.New("out of memory")
	}
	u.uploads[m.Coord]++
	return nil
}

func (u *fakeUploader) ReleaseChunk(c voxel.ChunkCoord) { u.released[c]++ }

type fakeFlusher struct{ requests int }

func (f *fakeFlusher) RequestFlush() { f.requests++ }

type fakeLoader struct{ requested []voxel.ChunkCoord }

func (l *fakeLoader) RequestChunk(c voxel.ChunkCoord) { l.requested = append(l.requested, c) }

type harness struct {
	store    *chunk.Store
	reg      *blocks.Registry
	uploader *fakeUploader
	flusher  *fakeFlusher
	loader   *fakeLoader
	sched    *Scheduler
}

func newHarness(cfg Config) *harness {
	h := &harness{
		store:    chunk.NewStore(chunk.DefaultLimits()),
		reg:      blocks.NewDefaultRegistry(),
		uploader: newFakeUploader(),
		flusher:  &fakeFlusher{},
		loader:   &fakeLoader{},
	}
	mesher := terrain.NewBuilder(h.reg, terrain.Options{Greedy: true})
	h.sched = New(cfg, h.store, h.reg, mesher, h.loader, h.uploader, h.flusher)
	return h
}

func (h *harness) place(t *testing.T, p voxel.Pos, id voxel.BlockID) {
	t.Helper()
	if _, err := h.store.SetVoxel(p, voxel.Of(id)); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) fillChunk(t *testing.T, c voxel.ChunkCoord, id voxel.BlockID) {
	t.Helper()
	o := c.Origin()
	pls := make([]chunk.Placement, 0, voxel.ChunkVolume)
	for y := 0; y < chunk.Size; y++ {
		for z := 0; z < chunk.Size; z++ {
			for x := 0; x < chunk.Size; x++ {
				pls = append(pls, chunk.Placement{Pos: o.Add(x, y, z), Voxel: voxel.Of(id)})
			}
		}
	}
	if err := h.store.BulkLoad(pls); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) flushAll() {
	for _, snap := range h.store.DirtyChunks() {
		h.store.MarkFlushed(snap.Coord, snap.Version)
	}
}

var origin = mgl32.Vec3{8, 8, 8}

func TestViewDistanceShrinkUnloads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ViewDistance = 128
	cfg.MaxMeshesPerFrame = 100
	cfg.Occlusion = false
	h := newHarness(cfg)

	for k := 0; k < 8; k++ {
		h.place(t, voxel.Pos{X: k*16 + 3, Y: 3, Z: 3}, blocks.Stone)
	}
	h.sched.Tick(origin)
	for k := 0; k < 8; k++ {
		c := voxel.ChunkCoord{X: k}
		if st := h.sched.State(c); st != Meshed {
			t.Fatalf("chunk %v state = %s, want meshed", c, st)
		}
	}

	h.sched.SetViewDistance(32)
	h.sched.Tick(origin)

	for k := 0; k < 8; k++ {
		c := voxel.ChunkCoord{X: k}
		st := h.sched.State(c)
		if k <= 2 && st != Meshed {
			t.Errorf("chunk %v in range state = %s, want meshed", c, st)
		}
		if k > 2 && st != Unloading {
			t.Errorf("chunk %v out of range state = %s, want unloading", c, st)
		}
	}
	if h.flusher.requests == 0 {
		t.Error("dirty chunks leaving range should request a flush")
	}

	// once flushed they are evicted and their GPU resources released
	h.flushAll()
	h.sched.Tick(origin)
	for k := 3; k < 8; k++ {
		c := voxel.ChunkCoord{X: k}
		if st := h.sched.State(c); st != Unloaded {
			t.Errorf("chunk %v state = %s after flush, want unloaded", c, st)
		}
		if _, ok := h.store.Chunk(c); ok {
			t.Errorf("chunk %v still resident", c)
		}
		if h.uploader.released[c] == 0 {
			t.Errorf("chunk %v resources not released", c)
		}
	}
}

func TestMeshBudgetNearestFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMeshesPerFrame = 3
	cfg.Occlusion = false
	h := newHarness(cfg)

	for k := 0; k < 5; k++ {
		h.place(t, voxel.Pos{X: k*16 + 1, Y: 1, Z: 1}, blocks.Stone)
	}

	st := h.sched.Tick(origin)
	if st.Built != 3 {
		t.Fatalf("built = %d, want 3", st.Built)
	}
	for k := 0; k < 5; k++ {
		want := Meshed
		if k >= 3 {
			want = Dirty
		}
		if got := h.sched.State(voxel.ChunkCoord{X: k}); got != want {
			t.Errorf("chunk %d state = %s, want %s", k, got, want)
		}
	}

	st = h.sched.Tick(origin)
	if st.Built != 2 || st.Dirty != 0 {
		t.Errorf("second tick built = %d dirty = %d", st.Built, st.Dirty)
	}
}

func TestEditMarksDirtyAndRemeshes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Occlusion = false
	h := newHarness(cfg)
	h.place(t, voxel.Pos{X: 15, Y: 1, Z: 1}, blocks.Stone)
	h.place(t, voxel.Pos{X: 16, Y: 1, Z: 1}, blocks.Stone)
	h.sched.Tick(origin)

	h.place(t, voxel.Pos{X: 15, Y: 2, Z: 1}, blocks.Dirt)
	st := h.sched.Tick(origin)
	if st.Built != 2 {
		t.Errorf("boundary edit rebuilt %d chunks, want 2", st.Built)
	}
	if h.uploader.uploads[voxel.ChunkCoord{X: 1}] != 2 {
		t.Errorf("neighbour uploads = %d, want 2", h.uploader.uploads[voxel.ChunkCoord{X: 1}])
	}
}

func TestOcclusionSkipsEnclosedChunk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMeshesPerFrame = 100
	cfg.ViewDistance = 200
	h := newHarness(cfg)

	center := voxel.ChunkCoord{}
	h.place(t, voxel.Pos{X: 5, Y: 5, Z: 5}, blocks.Stone)
	for _, f := range voxel.Faces {
		h.fillChunk(t, center.Neighbor(f), blocks.Stone)
	}

	h.sched.Tick(origin)
	if !h.sched.Occluded(center) {
		t.Fatal("enclosed chunk should be occluded")
	}
	if h.sched.State(center) != Meshed {
		t.Errorf("occluded chunk state = %s", h.sched.State(center))
	}
	for _, c := range h.sched.Visible() {
		if c == center {
			t.Error("occluded chunk reported visible")
		}
	}

	// opening one voxel on the +y neighbour's boundary layer drops coverage below 1
	h.place(t, voxel.Pos{X: 3, Y: 16, Z: 3}, voxel.Empty)
	h.sched.Tick(origin)
	if h.sched.Occluded(center) {
		t.Error("chunk with an exposed face should not be occluded at threshold 1")
	}

	h.sched.SetOcclusion(true, 0.9)
	h.sched.Tick(origin)
	if !h.sched.Occluded(center) {
		t.Error("chunk should be occluded again at threshold 0.9")
	}

	h.sched.SetOcclusion(false, 0.9)
	h.sched.Tick(origin)
	if h.sched.Occluded(center) {
		t.Error("disabling occlusion should mesh the chunk")
	}
}

func TestEvictedNeighbourUncoversChunk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMeshesPerFrame = 100
	cfg.ViewDistance = 200
	h := newHarness(cfg)

	center := voxel.ChunkCoord{}
	top := center.Neighbor(voxel.FacePosY)
	h.place(t, voxel.Pos{X: 5, Y: 5, Z: 5}, blocks.Stone)
	for _, f := range voxel.Faces {
		h.fillChunk(t, center.Neighbor(f), blocks.Stone)
	}
	h.sched.Tick(origin)
	if !h.sched.Occluded(center) {
		t.Fatal("enclosed chunk should be occluded")
	}
	h.flushAll()

	// below the world: only the +y neighbour falls outside 55 blocks
	below := mgl32.Vec3{8, -40, 8}
	h.sched.SetViewDistance(55)
	h.sched.Tick(below)
	if _, ok := h.store.Chunk(top); ok {
		t.Fatal("+y neighbour should be evicted")
	}
	if p := h.store.Parked(); len(p) != 1 || p[0] != top {
		t.Errorf("parked = %v, want [%v]", p, top)
	}

	h.sched.Tick(below)
	if h.sched.Occluded(center) {
		t.Error("chunk stays occluded after its +y neighbour was evicted")
	}
}

func TestUploadFailureKeepsDirty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Occlusion = false
	h := newHarness(cfg)
	c := voxel.ChunkCoord{}
	h.place(t, voxel.Pos{X: 1, Y: 1, Z: 1}, blocks.Stone)
	h.uploader.fail[c] = true

	h.sched.Tick(origin)
	if st := h.sched.State(c); st != Dirty {
		t.Fatalf("state after failed upload = %s, want dirty", st)
	}

	delete(h.uploader.fail, c)
	h.sched.Tick(origin)
	if st := h.sched.State(c); st != Meshed {
		t.Errorf("state after retry = %s, want meshed", st)
	}
}

func TestKnownChunksLoadThroughLoader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Occlusion = false
	h := newHarness(cfg)
	near := voxel.ChunkCoord{X: 1}
	far := voxel.ChunkCoord{X: 40}
	h.sched.Track([]voxel.ChunkCoord{near, far})

	h.sched.Tick(origin)
	if h.sched.State(near) != Loading {
		t.Fatalf("near state = %s, want loading", h.sched.State(near))
	}
	if h.sched.State(far) != Unloaded {
		t.Errorf("far state = %s, want unloaded", h.sched.State(far))
	}
	if len(h.loader.requested) != 1 || h.loader.requested[0] != near {
		t.Errorf("requested = %v", h.loader.requested)
	}

	snap := chunk.Snapshot{Coord: near, Voxels: make([]voxel.Voxel, voxel.ChunkVolume)}
	snap.Voxels[0] = voxel.Of(blocks.Stone)
	if err := h.store.Load(snap); err != nil {
		t.Fatal(err)
	}
	h.sched.ChunkLoaded(near, true)
	h.sched.Tick(origin)
	if h.sched.State(near) != Meshed {
		t.Errorf("near state after load = %s, want meshed", h.sched.State(near))
	}
	if h.sched.Mesh(near).Empty() {
		t.Error("loaded chunk should have geometry")
	}
}

func TestEventuallyMeshed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ViewDistance = 64
	cfg.MaxMeshesPerFrame = 2
	cfg.Occlusion = false
	h := newHarness(cfg)

	for x := -3; x <= 3; x++ {
		for z := -3; z <= 3; z++ {
			h.place(t, voxel.Pos{X: x*16 + 2, Y: 2, Z: z*16 + 2}, blocks.Dirt)
		}
	}

	var st Stats
	for i := 0; i < 40; i++ {
		st = h.sched.Tick(origin)
	}
	for _, c := range h.store.Coords() {
		d := h.sched.distance(c)
		state := h.sched.State(c)
		if d <= cfg.ViewDistance && state != Meshed {
			t.Errorf("chunk %v at %.1f state = %s, want meshed", c, d, state)
		}
		if d > cfg.ViewDistance && state == Meshed {
			t.Errorf("chunk %v at %.1f is meshed beyond view distance", c, d)
		}
	}
	if st.Dirty != 0 {
		t.Errorf("dirty chunks remain after 40 ticks: %d", st.Dirty)
	}
}
