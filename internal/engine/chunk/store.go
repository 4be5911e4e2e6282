package chunk

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// ErrBadSnapshot is returned when a snapshot does not hold a full chunk.
var ErrBadSnapshot = errors.New("snapshot has wrong voxel count")

// Limits bounds the world positions that may be written.
type Limits struct {
	Min, Max voxel.Pos
}

// DefaultLimits returns ±2^20 blocks horizontally and [-1024, 1023] vertically.
func DefaultLimits() Limits {
	return Limits{
		Min: voxel.Pos{X: -1 << 20, Y: -1024, Z: -1 << 20},
		Max: voxel.Pos{X: 1<<20 - 1, Y: 1023, Z: 1<<20 - 1},
	}
}

// Contains reports whether p is writable.
func (l Limits) Contains(p voxel.Pos) bool {
	return voxel.Region{Min: l.Min, Max: l.Max}.Contains(p)
}

// OutOfBoundsError is returned when a write targets a position outside the world limits.
type OutOfBoundsError struct {
	Pos    voxel.Pos
	Limits Limits
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("position %s outside world limits [%s .. %s]", e.Pos, e.Limits.Min, e.Limits.Max)
}

// NotResidentError is returned when a write targets chunks that exist in
// storage but are not in memory. The chunks must be loaded first.
type NotResidentError struct {
	Chunks []voxel.ChunkCoord
}

func (e *NotResidentError) Error() string {
	if len(e.Chunks) == 1 {
		return fmt.Sprintf("chunk %s is stored but not loaded", e.Chunks[0])
	}
	return fmt.Sprintf("%d chunks are stored but not loaded (first %s)", len(e.Chunks), e.Chunks[0])
}

// Observer is notified of every voxel change applied to the store.
type Observer interface {
	VoxelChanged(p voxel.Pos, prev, next voxel.Voxel)
	ChunkReplaced(c *Chunk)
	ChunkRemoved(coord voxel.ChunkCoord)
}

// Placement is one voxel written by a bulk load.
type Placement struct {
	Pos   voxel.Pos
	Voxel voxel.Voxel
}

// Store owns every chunk of the world. It is not safe for concurrent use and
// is driven from the frame loop only.
type Store struct {
	chunks    map[voxel.ChunkCoord]*Chunk
	limits    Limits
	total     int
	frame     uint64
	stale     map[voxel.ChunkCoord]struct{}
	parked    map[voxel.ChunkCoord]struct{} // stored, not resident
	pinned    map[voxel.ChunkCoord]struct{}
	observers []Observer
}

// NewStore creates an empty world bounded by limits.
func NewStore(limits Limits) *Store {
	return &Store{
		chunks: make(map[voxel.ChunkCoord]*Chunk),
		limits: limits.normalize(),
		stale:  make(map[voxel.ChunkCoord]struct{}),
		parked: make(map[voxel.ChunkCoord]struct{}),
		pinned: make(map[voxel.ChunkCoord]struct{}),
	}
}

func (l Limits) normalize() Limits {
	r := voxel.Region{Min: l.Min, Max: l.Max}.Normalize()
	return Limits{Min: r.Min, Max: r.Max}
}

// Observe registers an observer for voxel changes.
func (s *Store) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

// Limits returns the configured coordinate limits.
func (s *Store) Limits() Limits {
	return s.limits
}

// SetFrame sets the frame number stamped on accessed chunks.
func (s *Store) SetFrame(frame uint64) {
	s.frame = frame
}

// Voxel returns the voxel at p, or an empty voxel if its chunk is absent.
func (s *Store) Voxel(p voxel.Pos) voxel.Voxel {
	c, ok := s.chunks[p.Chunk()]
	if !ok {
		return voxel.Voxel{}
	}
	return c.At(p)
}

// SetVoxel writes v at p and returns the previous voxel. The owning chunk is
// created on demand and marked dirty. The owning chunk and any neighbour
// sharing the touched boundary are marked for re-meshing.
func (s *Store) SetVoxel(p voxel.Pos, v voxel.Voxel) (voxel.Voxel, error) {
	if !s.limits.Contains(p) {
		return voxel.Voxel{}, &OutOfBoundsError{Pos: p, Limits: s.limits}
	}
	coord := p.Chunk()
	if _, ok := s.parked[coord]; ok {
		return voxel.Voxel{}, &NotResidentError{Chunks: []voxel.ChunkCoord{coord}}
	}
	c, ok := s.chunks[coord]
	if !ok {
		if v.IsEmpty() {
			return voxel.Voxel{}, nil
		}
		c = newChunk(coord)
		s.chunks[coord] = c
	}
	c.LastAccessed = s.frame

	x, y, z := p.Local()
	if c.Voxel(x, y, z) == v {
		return v, nil
	}
	prev, delta := c.set(x, y, z, v)
	s.total += delta
	s.markStale(coord)
	s.markBoundary(coord, x, y, z)

	for _, o := range s.observers {
		o.VoxelChanged(p, prev, v)
	}
	return prev, nil
}

func (s *Store) markBoundary(coord voxel.ChunkCoord, x, y, z int) {
	local := [3]int{x, y, z}
	for _, f := range voxel.Faces {
		edge := 0
		if f.Positive() {
			edge = Size - 1
		}
		if local[f.Axis()] != edge {
			continue
		}
		n := coord.Neighbor(f)
		if _, ok := s.chunks[n]; ok {
			s.markStale(n)
		}
	}
}

func (s *Store) markStale(c voxel.ChunkCoord) {
	s.stale[c] = struct{}{}
}

// MarkStale flags a chunk for re-meshing without changing its content.
func (s *Store) MarkStale(c voxel.ChunkCoord) {
	s.markStale(c)
}

// MarkAllStale flags every resident chunk for re-meshing.
func (s *Store) MarkAllStale() {
	for c := range s.chunks {
		s.markStale(c)
	}
}

// TakeStale returns and clears the set of chunks needing a new mesh, sorted.
func (s *Store) TakeStale() []voxel.ChunkCoord {
	if len(s.stale) == 0 {
		return nil
	}
	out := make([]voxel.ChunkCoord, 0, len(s.stale))
	for c := range s.stale {
		out = append(out, c)
	}
	clear(s.stale)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Chunk returns the chunk at coord if resident.
func (s *Store) Chunk(coord voxel.ChunkCoord) (*Chunk, bool) {
	c, ok := s.chunks[coord]
	if ok {
		c.LastAccessed = s.frame
	}
	return c, ok
}

// Neighbors returns the six face-adjacent chunks in voxel.Faces order; absent ones are nil.
func (s *Store) Neighbors(coord voxel.ChunkCoord) [6]*Chunk {
	var out [6]*Chunk
	for i, f := range voxel.Faces {
		out[i] = s.chunks[coord.Neighbor(f)]
	}
	return out
}

// Evict removes a clean chunk. Dirty and pinned chunks are left in place and
// false is returned. A non-empty evicted chunk is parked: writes to it are
// refused until it is loaded again. Resident neighbours are marked for
// re-meshing since their exposed faces changed.
func (s *Store) Evict(coord voxel.ChunkCoord) bool {
	c, ok := s.chunks[coord]
	if !ok {
		return true
	}
	if _, pin := s.pinned[coord]; c.dirty || pin {
		return false
	}
	s.total -= c.count
	delete(s.chunks, coord)
	delete(s.stale, coord)
	if !c.Empty() {
		s.parked[coord] = struct{}{}
	}
	for _, f := range voxel.Faces {
		if _, ok := s.chunks[coord.Neighbor(f)]; ok {
			s.markStale(coord.Neighbor(f))
		}
	}
	for _, o := range s.observers {
		o.ChunkRemoved(coord)
	}
	return true
}

// Park records chunks that exist in storage but are not resident. Resident
// coordinates are ignored.
func (s *Store) Park(coords ...voxel.ChunkCoord) {
	for _, c := range coords {
		if _, ok := s.chunks[c]; !ok {
			s.parked[c] = struct{}{}
		}
	}
}

// Unpark forgets a parked chunk, e.g. when storage turned out to have no record.
func (s *Store) Unpark(coord voxel.ChunkCoord) {
	delete(s.parked, coord)
}

// Parked returns the stored, non-resident chunks, sorted.
func (s *Store) Parked() []voxel.ChunkCoord {
	out := make([]voxel.ChunkCoord, 0, len(s.parked))
	for c := range s.parked {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Missing returns the coordinates among coords that are parked, sorted.
func (s *Store) Missing(coords []voxel.ChunkCoord) []voxel.ChunkCoord {
	var out []voxel.ChunkCoord
	seen := make(map[voxel.ChunkCoord]struct{}, len(coords))
	for _, c := range coords {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if _, ok := s.parked[c]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Pin keeps chunks resident: Evict refuses them until Unpin.
func (s *Store) Pin(coords ...voxel.ChunkCoord) {
	for _, c := range coords {
		s.pinned[c] = struct{}{}
	}
}

// Unpin releases chunks held by Pin.
func (s *Store) Unpin(coords ...voxel.ChunkCoord) {
	for _, c := range coords {
		delete(s.pinned, c)
	}
}

// Coords returns the coordinates of all resident chunks, sorted.
func (s *Store) Coords() []voxel.ChunkCoord {
	out := make([]voxel.ChunkCoord, 0, len(s.chunks))
	for c := range s.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len returns the number of resident chunks.
func (s *Store) Len() int {
	return len(s.chunks)
}

// TotalBlocks returns the number of non-empty voxels across resident chunks.
func (s *Store) TotalBlocks() int {
	return s.total
}

// DirtyChunks returns snapshots of all chunks with unflushed changes, sorted by coordinate.
func (s *Store) DirtyChunks() []Snapshot {
	var out []Snapshot
	for _, coord := range s.Coords() {
		if c := s.chunks[coord]; c.dirty {
			out = append(out, c.Snapshot())
		}
	}
	return out
}

// HasDirty reports whether any chunk has unflushed changes.
func (s *Store) HasDirty() bool {
	for _, c := range s.chunks {
		if c.dirty {
			return true
		}
	}
	return false
}

// MarkFlushed clears the dirty flag if the chunk has not changed since the
// flushed version was taken.
func (s *Store) MarkFlushed(coord voxel.ChunkCoord, version uint64) {
	if c, ok := s.chunks[coord]; ok && c.version == version {
		c.dirty = false
	}
}

// Load installs a clean chunk read from storage, replacing any resident one.
func (s *Store) Load(snap Snapshot) error {
	c, err := fromSnapshot(snap)
	if err != nil {
		return err
	}
	s.install(c)
	return nil
}

// ReplaceAll swaps the whole world for the given snapshots. Block counts are
// rebuilt by scanning, which only happens here.
func (s *Store) ReplaceAll(snaps []Snapshot) error {
	fresh := make(map[voxel.ChunkCoord]*Chunk, len(snaps))
	for _, snap := range snaps {
		c, err := fromSnapshot(snap)
		if err != nil {
			return err
		}
		fresh[c.Coord] = c
	}

	for coord := range s.chunks {
		for _, o := range s.observers {
			o.ChunkRemoved(coord)
		}
	}
	s.chunks = fresh
	s.total = 0
	clear(s.stale)
	clear(s.parked)
	clear(s.pinned)
	for coord, c := range fresh {
		s.total += c.count
		s.markStale(coord)
		for _, o := range s.observers {
			o.ChunkReplaced(c)
		}
	}
	return nil
}

// BulkLoad writes many voxels as one operation. Every position is checked
// against the limits first; nothing is written if any is outside. Touched
// chunks are marked dirty once and observers receive one ChunkReplaced each.
// Placements landing in parked chunks fail the whole load with
// NotResidentError.
func (s *Store) BulkLoad(placements []Placement) error {
	for _, pl := range placements {
		if !s.limits.Contains(pl.Pos) {
			return &OutOfBoundsError{Pos: pl.Pos, Limits: s.limits}
		}
	}
	if len(s.parked) > 0 {
		if missing := s.Missing(PlacementChunks(placements)); len(missing) > 0 {
			return &NotResidentError{Chunks: missing}
		}
	}

	touched := make(map[voxel.ChunkCoord]*Chunk)
	for _, pl := range placements {
		coord := pl.Pos.Chunk()
		c, ok := s.chunks[coord]
		if !ok {
			c = newChunk(coord)
			s.chunks[coord] = c
		}
		x, y, z := pl.Pos.Local()
		_, delta := c.set(x, y, z, pl.Voxel)
		s.total += delta
		touched[coord] = c
	}

	for coord, c := range touched {
		s.markStale(coord)
		for _, f := range voxel.Faces {
			if _, ok := s.chunks[coord.Neighbor(f)]; ok {
				s.markStale(coord.Neighbor(f))
			}
		}
		for _, o := range s.observers {
			o.ChunkReplaced(c)
		}
	}
	return nil
}

// Clear drops every chunk, dirty or not. Used when a project is closed.
func (s *Store) Clear() {
	for coord := range s.chunks {
		for _, o := range s.observers {
			o.ChunkRemoved(coord)
		}
	}
	s.chunks = make(map[voxel.ChunkCoord]*Chunk)
	s.total = 0
	clear(s.stale)
	clear(s.parked)
	clear(s.pinned)
}

// PlacementChunks returns the distinct chunks touched by placements, sorted.
func PlacementChunks(placements []Placement) []voxel.ChunkCoord {
	seen := make(map[voxel.ChunkCoord]struct{})
	var out []voxel.ChunkCoord
	for _, pl := range placements {
		c := pl.Pos.Chunk()
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (s *Store) install(c *Chunk) {
	if old, ok := s.chunks[c.Coord]; ok {
		s.total -= old.count
	}
	s.chunks[c.Coord] = c
	s.total += c.count
	delete(s.parked, c.Coord)
	s.markStale(c.Coord)
	for _, f := range voxel.Faces {
		if _, ok := s.chunks[c.Coord.Neighbor(f)]; ok {
			s.markStale(c.Coord.Neighbor(f))
		}
	}
	for _, o := range s.observers {
		o.ChunkReplaced(c)
	}
}

func fromSnapshot(snap Snapshot) (*Chunk, error) {
	if len(snap.Voxels) != voxel.ChunkVolume {
		return nil, fmt.Errorf("chunk %s: %w (%d)", snap.Coord, ErrBadSnapshot, len(snap.Voxels))
	}
	c := newChunk(snap.Coord)
	copy(c.voxels[:], snap.Voxels)
	c.count = c.countScan()
	return c, nil
}
