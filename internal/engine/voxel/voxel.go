// Package voxel defines the value types shared by every part of the terrain engine.
package voxel

import "fmt"

// ChunkSize is the side length of a chunk in blocks.
const ChunkSize = 16

// ChunkVolume is the number of voxels stored in one chunk.
const ChunkVolume = ChunkSize * ChunkSize * ChunkSize

// BlockID identifies a block type. Zero is the empty block.
type BlockID uint16

// Empty is the block id of an unoccupied voxel.
const Empty BlockID = 0

// Voxel is the content of one cell of the world.
type Voxel struct {
	Block    BlockID
	Rotation uint8 // yaw steps, 0..3
	Variant  uint8 // 0 = none, 1 = flipped (top slab, upside-down wedge)
}

// IsEmpty reports whether the voxel holds no block.
func (v Voxel) IsEmpty() bool {
	return v.Block == Empty
}

// Of returns a voxel of the given block with no rotation.
func Of(id BlockID) Voxel {
	return Voxel{Block: id}
}

// Pos is an integer world position in block units.
type Pos struct {
	X, Y, Z int
}

// String formats the position as "x,y,z", the key format used by terrain records.
func (p Pos) String() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// Add returns p offset by the given deltas.
func (p Pos) Add(dx, dy, dz int) Pos {
	return Pos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// Chunk returns the coordinate of the chunk containing p.
func (p Pos) Chunk() ChunkCoord {
	return ChunkCoord{
		X: FloorDiv(p.X, ChunkSize),
		Y: FloorDiv(p.Y, ChunkSize),
		Z: FloorDiv(p.Z, ChunkSize),
	}
}

// Local returns the position of p inside its chunk.
func (p Pos) Local() (x, y, z int) {
	return Mod(p.X, ChunkSize), Mod(p.Y, ChunkSize), Mod(p.Z, ChunkSize)
}

// Less orders positions by x, then y, then z.
func (p Pos) Less(o Pos) bool {
	if p.X != o.X {
		return p.X < o.X
	}
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.Z < o.Z
}

// ChunkCoord addresses a chunk in chunk units.
type ChunkCoord struct {
	X, Y, Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("%d,%d,%d", c.X, c.Y, c.Z)
}

// Origin returns the world position of the chunk's minimum corner.
func (c ChunkCoord) Origin() Pos {
	return Pos{X: c.X * ChunkSize, Y: c.Y * ChunkSize, Z: c.Z * ChunkSize}
}

// Center returns the world-space center of the chunk.
func (c ChunkCoord) Center() [3]float32 {
	const half = float32(ChunkSize) / 2
	o := c.Origin()
	return [3]float32{float32(o.X) + half, float32(o.Y) + half, float32(o.Z) + half}
}

// Neighbor returns the chunk adjacent across the given face.
func (c ChunkCoord) Neighbor(f Face) ChunkCoord {
	d := f.Normal()
	return ChunkCoord{X: c.X + d[0], Y: c.Y + d[1], Z: c.Z + d[2]}
}

// Less orders chunk coordinates by x, then y, then z.
func (c ChunkCoord) Less(o ChunkCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

// Index returns the voxel array index of a local position.
func Index(x, y, z int) int {
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Mod returns the non-negative remainder of a / b.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
