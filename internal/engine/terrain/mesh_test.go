package terrain

import (
	"reflect"
	"testing"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

func newWorld(t *testing.T, placements map[voxel.Pos]voxel.Voxel) *chunk.Store {
	t.Helper()
	s := chunk.NewStore(chunk.DefaultLimits())
	for p, v := range placements {
		if _, err := s.SetVoxel(p, v); err != nil {
			t.Fatalf("SetVoxel(%v) error = %v", p, err)
		}
	}
	return s
}

func build(t *testing.T, b *Builder, s *chunk.Store, coord voxel.ChunkCoord) *Mesh {
	t.Helper()
	c, ok := s.Chunk(coord)
	if !ok {
		t.Fatalf("chunk %v not resident", coord)
	}
	return b.Build(c, s.Neighbors(coord))
}

func facesOf(m *Mesh, f voxel.Face) []Quad {
	var out []Quad
	for _, q := range m.Quads {
		if q.Face == f {
			out = append(out, q)
		}
	}
	return out
}

func flatSlab(t *testing.T) *chunk.Store {
	return newWorld(t, map[voxel.Pos]voxel.Voxel{
		{X: 0, Y: 0, Z: 0}: voxel.Of(blocks.Stone),
		{X: 1, Y: 0, Z: 0}: voxel.Of(blocks.Stone),
		{X: 0, Y: 0, Z: 1}: voxel.Of(blocks.Stone),
		{X: 1, Y: 0, Z: 1}: voxel.Of(blocks.Stone),
	})
}

func TestGreedyMergesFlatSlab(t *testing.T) {
	b := NewBuilder(blocks.NewDefaultRegistry(), Options{Greedy: true})
	m := build(t, b, flatSlab(t), voxel.ChunkCoord{})

	top := facesOf(m, voxel.FacePosY)
	if len(top) != 1 {
		t.Fatalf("top quads = %d, want 1", len(top))
	}
	if top[0].Size != [2]float32{2, 2} {
		t.Errorf("top quad size = %v, want 2x2", top[0].Size)
	}
	// one quad per face direction
	if len(m.Quads) != 6 {
		t.Errorf("total quads = %d, want 6", len(m.Quads))
	}
	if len(m.Indices) != 36 || len(m.Vertices) != 24 {
		t.Errorf("vertices = %d, indices = %d", len(m.Vertices), len(m.Indices))
	}
	for _, q := range top {
		for _, c := range q.Corners {
			if c[1] != 1 {
				t.Errorf("top face corner %v not at y=1", c)
			}
		}
	}
}

func TestNonGreedyEmitsOneQuadPerFace(t *testing.T) {
	b := NewBuilder(blocks.NewDefaultRegistry(), Options{Greedy: false})
	m := build(t, b, flatSlab(t), voxel.ChunkCoord{})

	if n := len(facesOf(m, voxel.FacePosY)); n != 4 {
		t.Errorf("top quads = %d, want 4", n)
	}
	// 4 top + 4 bottom + 8 sides
	if len(m.Quads) != 16 {
		t.Errorf("total quads = %d, want 16", len(m.Quads))
	}

	var area float32
	for _, q := range facesOf(m, voxel.FacePosY) {
		area += q.Size[0] * q.Size[1]
	}
	if area != 4 {
		t.Errorf("covered top area = %v, want 4", area)
	}
}

func TestMeshIsDeterministic(t *testing.T) {
	reg := blocks.NewDefaultRegistry()
	s := newWorld(t, map[voxel.Pos]voxel.Voxel{
		{X: 3, Y: 3, Z: 3}:  voxel.Of(blocks.Grass),
		{X: 4, Y: 3, Z: 3}:  voxel.Of(blocks.Dirt),
		{X: 4, Y: 4, Z: 3}:  voxel.Voxel{Block: blocks.Stairs, Rotation: 2},
		{X: 5, Y: 3, Z: 3}:  voxel.Voxel{Block: blocks.Slab, Variant: 1},
		{X: 15, Y: 0, Z: 0}: voxel.Of(blocks.Glass),
		{X: 16, Y: 0, Z: 0}: voxel.Of(blocks.Stone),
		{X: 8, Y: 8, Z: 8}:  voxel.Of(blocks.Wedge),
	})

	for _, greedy := range []bool{true, false} {
		b := NewBuilder(reg, Options{Greedy: greedy})
		first := build(t, b, s, voxel.ChunkCoord{})
		second := build(t, b, s, voxel.ChunkCoord{})
		if !reflect.DeepEqual(first, second) {
			t.Errorf("greedy=%v: meshing the same chunk twice produced different output", greedy)
		}
	}
}

func TestCullingAcrossChunkBoundary(t *testing.T) {
	b := NewBuilder(blocks.NewDefaultRegistry(), Options{Greedy: true})
	s := newWorld(t, map[voxel.Pos]voxel.Voxel{
		{X: 15, Y: 0, Z: 0}: voxel.Of(blocks.Stone),
		{X: 16, Y: 0, Z: 0}: voxel.Of(blocks.Stone),
	})

	m := build(t, b, s, voxel.ChunkCoord{})
	if n := len(facesOf(m, voxel.FacePosX)); n != 0 {
		t.Errorf("+x faces = %d, want 0 (hidden by neighbour chunk)", n)
	}

	// without the neighbour chunk the face is exposed
	c, _ := s.Chunk(voxel.ChunkCoord{})
	m = b.Build(c, [6]*chunk.Chunk{})
	if n := len(facesOf(m, voxel.FacePosX)); n != 1 {
		t.Errorf("+x faces with absent neighbour = %d, want 1", n)
	}
}

func TestTransparentNeighbourKeepsFace(t *testing.T) {
	b := NewBuilder(blocks.NewDefaultRegistry(), Options{Greedy: true})
	s := newWorld(t, map[voxel.Pos]voxel.Voxel{
		{X: 0, Y: 0, Z: 0}: voxel.Of(blocks.Stone),
		{X: 1, Y: 0, Z: 0}: voxel.Of(blocks.Glass),
		{X: 2, Y: 0, Z: 0}: voxel.Of(blocks.Glass),
	})
	m := build(t, b, s, voxel.ChunkCoord{})

	var stoneEast, glassInner int
	for _, q := range facesOf(m, voxel.FacePosX) {
		if q.Block == blocks.Stone {
			stoneEast++
		}
		if q.Block == blocks.Glass && q.Corners[0][0] == 2 {
			glassInner++
		}
	}
	if stoneEast != 1 {
		t.Errorf("stone +x faces = %d, want 1 behind glass", stoneEast)
	}
	if glassInner != 0 {
		t.Error("face between two glass blocks should be culled")
	}
}

func TestUnknownBlockUsesMissingMarker(t *testing.T) {
	reg := blocks.NewDefaultRegistry()
	b := NewBuilder(reg, Options{Greedy: true})
	s := newWorld(t, map[voxel.Pos]voxel.Voxel{{X: 1, Y: 1, Z: 1}: voxel.Of(4242)})

	m := build(t, b, s, voxel.ChunkCoord{})
	if len(m.Quads) != 6 {
		t.Fatalf("quads = %d, want 6", len(m.Quads))
	}
	want := reg.Missing().TextureIndex(voxel.FacePosY, 0)
	for _, q := range m.Quads {
		if q.Block != blocks.MissingID || q.Texture != want {
			t.Errorf("quad block=%d texture=%d, want missing marker", q.Block, q.Texture)
		}
	}
}

func TestInstancedBlocksSkipped(t *testing.T) {
	reg := blocks.NewDefaultRegistry()
	s := newWorld(t, map[voxel.Pos]voxel.Voxel{{X: 1, Y: 1, Z: 1}: voxel.Of(blocks.Torch)})

	on := build(t, NewBuilder(reg, Options{Greedy: true, SkipInstanced: true}), s, voxel.ChunkCoord{})
	if !on.Empty() {
		t.Errorf("instanced torch produced %d quads", len(on.Quads))
	}
	off := build(t, NewBuilder(reg, Options{Greedy: true}), s, voxel.ChunkCoord{})
	if len(off.Quads) != 4 {
		t.Errorf("baked torch quads = %d, want 4 cross planes", len(off.Quads))
	}
}

func TestHalfSlabFaces(t *testing.T) {
	b := NewBuilder(blocks.NewDefaultRegistry(), Options{Greedy: true})
	s := newWorld(t, map[voxel.Pos]voxel.Voxel{
		{X: 0, Y: 0, Z: 0}: voxel.Of(blocks.Slab),
		{X: 1, Y: 0, Z: 0}: voxel.Of(blocks.Slab),
		{X: 0, Y: 1, Z: 0}: voxel.Of(blocks.Stone),
	})
	m := build(t, b, s, voxel.ChunkCoord{})

	top := facesOf(m, voxel.FacePosY)
	var slabTop int
	for _, q := range top {
		if q.Block == blocks.Slab {
			slabTop++
			if q.Corners[0][1] != 0.5 {
				t.Errorf("slab top at y=%v, want 0.5", q.Corners[0][1])
			}
			if q.Size[0]*q.Size[1] != 2 {
				t.Errorf("slab top area = %v, want 2", q.Size[0]*q.Size[1])
			}
		}
	}
	if slabTop != 1 {
		t.Errorf("slab top quads = %d, want 1 merged quad under the stone", slabTop)
	}

	// stone above a bottom slab keeps its bottom face
	var stoneBottom int
	for _, q := range facesOf(m, voxel.FaceNegY) {
		if q.Block == blocks.Stone {
			stoneBottom++
		}
	}
	if stoneBottom != 1 {
		t.Errorf("stone bottom quads = %d, want 1", stoneBottom)
	}

	for _, q := range facesOf(m, voxel.FaceNegZ) {
		if q.Block != blocks.Slab {
			continue
		}
		for _, c := range q.Corners {
			if c[1] > 0.5 {
				t.Errorf("slab side reaches y=%v", c[1])
			}
		}
	}
}

func TestTemplatesRespectRotation(t *testing.T) {
	reg := blocks.NewDefaultRegistry()
	b := NewBuilder(reg, Options{Greedy: true})

	bounds := func(rot uint8) Bounds {
		s := newWorld(t, map[voxel.Pos]voxel.Voxel{{X: 0, Y: 0, Z: 0}: {Block: blocks.Stairs, Rotation: rot}})
		m := build(t, b, s, voxel.ChunkCoord{})
		if len(m.Quads) == 0 {
			t.Fatalf("rotation %d: no quads", rot)
		}
		// bounds of the upper step only
		ub := Bounds{Min: [3]float32{9, 9, 9}, Max: [3]float32{-9, -9, -9}}
		for _, q := range m.Quads {
			for _, c := range q.Corners {
				if c[1] > 0.5 {
					updateBounds(&ub, c)
				}
			}
		}
		return ub
	}

	r0 := bounds(0)
	if r0.Min[2] != 0.5 || r0.Max[2] != 1 {
		t.Errorf("rotation 0 upper step z = [%v,%v], want [0.5,1]", r0.Min[2], r0.Max[2])
	}
	r1 := bounds(1)
	if r1.Min[0] != 0 || r1.Max[0] != 0.5 {
		t.Errorf("rotation 1 upper step x = [%v,%v], want [0,0.5]", r1.Min[0], r1.Max[0])
	}
}

func TestGroupsSortedByTexture(t *testing.T) {
	b := NewBuilder(blocks.NewDefaultRegistry(), Options{Greedy: true})
	s := newWorld(t, map[voxel.Pos]voxel.Voxel{
		{X: 0, Y: 0, Z: 0}: voxel.Of(blocks.Grass),
		{X: 4, Y: 0, Z: 0}: voxel.Of(blocks.Sand),
		{X: 8, Y: 0, Z: 0}: voxel.Of(blocks.Stone),
	})
	m := build(t, b, s, voxel.ChunkCoord{})

	var total int32
	for i, g := range m.Groups {
		if i > 0 && m.Groups[i-1].TextureID >= g.TextureID {
			t.Errorf("groups not sorted: %d then %d", m.Groups[i-1].TextureID, g.TextureID)
		}
		if g.StartIndex != total {
			t.Errorf("group %d starts at %d, want %d", i, g.StartIndex, total)
		}
		total += g.IndexCount
	}
	if int(total) != len(m.Indices) {
		t.Errorf("groups cover %d indices of %d", total, len(m.Indices))
	}
}
