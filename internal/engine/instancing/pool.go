// Package instancing tracks blocks drawn through GPU instance batches
// instead of baked chunk geometry.
package instancing

import (
	"sort"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Key identifies one instance batch.
type Key struct {
	Block    voxel.BlockID
	Rotation uint8
}

func (k Key) less(o Key) bool {
	if k.Block != o.Block {
		return k.Block < o.Block
	}
	return k.Rotation < o.Rotation
}

// Batch is the sorted list of positions sharing one key.
type Batch struct {
	Key       Key
	Positions []voxel.Pos
}

// Pool keeps one batch per (block, rotation) for every block type flagged
// Instanced. Positions are tracked whether or not instancing is enabled so
// toggling only changes which renderer draws them.
type Pool struct {
	reg     *blocks.Registry
	enabled bool

	batches  map[Key]map[voxel.Pos]struct{}
	index    map[voxel.Pos]Key
	perChunk map[voxel.ChunkCoord]int
	dirty    map[Key]struct{}
}

// NewPool creates an empty pool.
func NewPool(reg *blocks.Registry, enabled bool) *Pool {
	return &Pool{
		reg:      reg,
		enabled:  enabled,
		batches:  make(map[Key]map[voxel.Pos]struct{}),
		index:    make(map[voxel.Pos]Key),
		perChunk: make(map[voxel.ChunkCoord]int),
		dirty:    make(map[Key]struct{}),
	}
}

// Eligible reports whether blocks of this id are owned by the pool.
func (p *Pool) Eligible(id voxel.BlockID) bool {
	bt, ok := p.reg.Lookup(id)
	return ok && bt.Instanced
}

// Add places an instance at pos, replacing any instance already there.
func (p *Pool) Add(pos voxel.Pos, block voxel.BlockID, rotation uint8) {
	p.Remove(pos)
	k := Key{Block: block, Rotation: rotation % 4}
	b, ok := p.batches[k]
	if !ok {
		b = make(map[voxel.Pos]struct{})
		p.batches[k] = b
	}
	b[pos] = struct{}{}
	p.index[pos] = k
	p.perChunk[pos.Chunk()]++
	p.dirty[k] = struct{}{}
}

// Remove drops the instance at pos. It reports whether one existed.
func (p *Pool) Remove(pos voxel.Pos) bool {
	k, ok := p.index[pos]
	if !ok {
		return false
	}
	delete(p.index, pos)
	b := p.batches[k]
	delete(b, pos)
	if len(b) == 0 {
		delete(p.batches, k)
	}
	c := pos.Chunk()
	if p.perChunk[c]--; p.perChunk[c] <= 0 {
		delete(p.perChunk, c)
	}
	p.dirty[k] = struct{}{}
	return true
}

// RemoveChunk drops every instance inside a chunk.
func (p *Pool) RemoveChunk(coord voxel.ChunkCoord) {
	if p.perChunk[coord] == 0 {
		return
	}
	var doomed []voxel.Pos
	for pos := range p.index {
		if pos.Chunk() == coord {
			doomed = append(doomed, pos)
		}
	}
	for _, pos := range doomed {
		p.Remove(pos)
	}
}

// SetEnabled switches rendering ownership of eligible blocks. It returns the
// chunks holding instanced blocks; their meshes must be rebuilt.
func (p *Pool) SetEnabled(enabled bool) []voxel.ChunkCoord {
	if p.enabled == enabled {
		return nil
	}
	p.enabled = enabled
	for k := range p.batches {
		p.dirty[k] = struct{}{}
	}
	return p.Chunks()
}

// Enabled reports whether the pool currently renders eligible blocks.
func (p *Pool) Enabled() bool {
	return p.enabled
}

// Len returns the number of tracked instances.
func (p *Pool) Len() int {
	return len(p.index)
}

// Chunks returns the chunks containing instances, sorted.
func (p *Pool) Chunks() []voxel.ChunkCoord {
	out := make([]voxel.ChunkCoord, 0, len(p.perChunk))
	for c := range p.perChunk {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Batch returns the sorted positions for one key.
func (p *Pool) Batch(k Key) Batch {
	b := Batch{Key: k}
	for pos := range p.batches[k] {
		b.Positions = append(b.Positions, pos)
	}
	sort.Slice(b.Positions, func(i, j int) bool { return b.Positions[i].Less(b.Positions[j]) })
	return b
}

// Batches returns every batch ordered by key. It is empty while disabled.
func (p *Pool) Batches() []Batch {
	if !p.enabled {
		return nil
	}
	keys := make([]Key, 0, len(p.batches))
	for k := range p.batches {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	out := make([]Batch, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.Batch(k))
	}
	return out
}

// TakeDirty returns and clears the keys whose batch changed since the last call.
// A returned key with no positions means its GPU buffer can be released.
func (p *Pool) TakeDirty() []Key {
	if len(p.dirty) == 0 {
		return nil
	}
	out := make([]Key, 0, len(p.dirty))
	for k := range p.dirty {
		out = append(out, k)
	}
	clear(p.dirty)
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// VoxelChanged keeps batches in step with single voxel writes.
func (p *Pool) VoxelChanged(pos voxel.Pos, prev, next voxel.Voxel) {
	if !prev.IsEmpty() && p.Eligible(prev.Block) {
		p.Remove(pos)
	}
	if !next.IsEmpty() && p.Eligible(next.Block) {
		p.Add(pos, next.Block, next.Rotation)
	}
}

// ChunkReplaced rebuilds the instances of a chunk installed in bulk.
func (p *Pool) ChunkReplaced(c *chunk.Chunk) {
	p.RemoveChunk(c.Coord)
	if c.Empty() {
		return
	}
	origin := c.Coord.Origin()
	for y := 0; y < chunk.Size; y++ {
		for z := 0; z < chunk.Size; z++ {
			for x := 0; x < chunk.Size; x++ {
				v := c.Voxel(x, y, z)
				if !v.IsEmpty() && p.Eligible(v.Block) {
					p.Add(origin.Add(x, y, z), v.Block, v.Rotation)
				}
			}
		}
	}
}

// ChunkRemoved drops the instances of an evicted chunk.
func (p *Pool) ChunkRemoved(coord voxel.ChunkCoord) {
	p.RemoveChunk(coord)
}
