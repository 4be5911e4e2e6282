package importer

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Terrain is the result of an import: native placements sorted by position.
type Terrain struct {
	Placements []chunk.Placement
	Columns    int // foreign chunk columns read
}

func newTerrain(ps []chunk.Placement, columns int) *Terrain {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Pos.Less(ps[j].Pos) })
	return &Terrain{Placements: ps, Columns: columns}
}

// Len returns the number of blocks.
func (t *Terrain) Len() int {
	return len(t.Placements)
}

// Bounds returns the smallest region holding every block.
func (t *Terrain) Bounds() (voxel.Region, bool) {
	if len(t.Placements) == 0 {
		return voxel.Region{}, false
	}
	r := voxel.Region{Min: t.Placements[0].Pos, Max: t.Placements[0].Pos}
	for _, p := range t.Placements[1:] {
		r.Min = voxel.Pos{X: min(r.Min.X, p.Pos.X), Y: min(r.Min.Y, p.Pos.Y), Z: min(r.Min.Z, p.Pos.Z)}
		r.Max = voxel.Pos{X: max(r.Max.X, p.Pos.X), Y: max(r.Max.Y, p.Pos.Y), Z: max(r.Max.Z, p.Pos.Z)}
	}
	return r, true
}

// Map returns the terrain keyed by "x,y,z".
func (t *Terrain) Map() map[string]voxel.BlockID {
	out := make(map[string]voxel.BlockID, len(t.Placements))
	for _, p := range t.Placements {
		out[p.Pos.String()] = p.Voxel.Block
	}
	return out
}

// Encode returns the canonical byte form: per block, x, y, z as int32 and
// the block id as uint16, little endian, in sorted order.
func (t *Terrain) Encode() []byte {
	buf := make([]byte, 0, len(t.Placements)*14)
	for _, p := range t.Placements {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Pos.X)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Pos.Y)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Pos.Z)))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(p.Voxel.Block))
	}
	return buf
}

// Digest is the xxhash64 of Encode.
func (t *Terrain) Digest() uint64 {
	return xxhash.Sum64(t.Encode())
}
