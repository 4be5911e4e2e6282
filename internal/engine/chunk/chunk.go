// Package chunk holds the voxel world: fixed-size chunks keyed by coordinate.
package chunk

import (
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Size is the chunk side length in blocks.
const Size = voxel.ChunkSize

// Chunk is a dense 16x16x16 block of voxels.
type Chunk struct {
	Coord voxel.ChunkCoord

	// LastAccessed is the frame number of the last read or write.
	LastAccessed uint64

	voxels  [voxel.ChunkVolume]voxel.Voxel
	count   int
	dirty   bool
	version uint64
}

func newChunk(c voxel.ChunkCoord) *Chunk {
	return &Chunk{Coord: c}
}

// Voxel returns the voxel at a local position.
func (c *Chunk) Voxel(x, y, z int) voxel.Voxel {
	return c.voxels[voxel.Index(x, y, z)]
}

// At returns the voxel at a world position that must lie inside the chunk.
func (c *Chunk) At(p voxel.Pos) voxel.Voxel {
	x, y, z := p.Local()
	return c.voxels[voxel.Index(x, y, z)]
}

// set writes a local voxel and returns the previous one and the change in block count.
func (c *Chunk) set(x, y, z int, v voxel.Voxel) (voxel.Voxel, int) {
	i := voxel.Index(x, y, z)
	prev := c.voxels[i]
	c.voxels[i] = v
	delta := 0
	if prev.IsEmpty() && !v.IsEmpty() {
		delta = 1
	} else if !prev.IsEmpty() && v.IsEmpty() {
		delta = -1
	}
	c.count += delta
	c.dirty = true
	c.version++
	return prev, delta
}

// Count returns the number of non-empty voxels.
func (c *Chunk) Count() int {
	return c.count
}

// Empty reports whether the chunk holds no blocks.
func (c *Chunk) Empty() bool {
	return c.count == 0
}

// Dirty reports whether the chunk has changes not yet flushed to storage.
func (c *Chunk) Dirty() bool {
	return c.dirty
}

// Version increases on every content change.
func (c *Chunk) Version() uint64 {
	return c.version
}

// Snapshot copies the chunk contents.
func (c *Chunk) Snapshot() Snapshot {
	s := Snapshot{Coord: c.Coord, Version: c.version, Voxels: make([]voxel.Voxel, voxel.ChunkVolume)}
	copy(s.Voxels, c.voxels[:])
	return s
}

// Voxels returns a read-only view of the voxel array in index order.
func (c *Chunk) Voxels() []voxel.Voxel {
	return c.voxels[:]
}

// countScan recounts non-empty voxels.
func (c *Chunk) countScan() int {
	n := 0
	for _, v := range c.voxels {
		if !v.IsEmpty() {
			n++
		}
	}
	return n
}

// Snapshot is a detached copy of a chunk, safe to hand to other goroutines.
type Snapshot struct {
	Coord   voxel.ChunkCoord
	Version uint64
	Voxels  []voxel.Voxel // len == voxel.ChunkVolume
}

// Empty reports whether the snapshot contains no blocks.
func (s Snapshot) Empty() bool {
	for _, v := range s.Voxels {
		if !v.IsEmpty() {
			return false
		}
	}
	return true
}
