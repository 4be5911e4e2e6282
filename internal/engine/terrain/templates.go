package terrain

import (
	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Template geometry is authored in sixteenths of a block, front facing north
// (-Z), for rotation 0 and variant 0.

// box is an axis-aligned element of a shape template.
type box struct {
	From, To [3]float32
}

// poly is a free-form face of a shape template with 3 or 4 corners in
// counter-clockwise order seen from the front.
type poly struct {
	Face    voxel.Face // nearest cardinal direction, picks the texture
	Corners [][3]float32
}

type template struct {
	Boxes []box
	Polys []poly
}

const third = 16.0 / 3

var templates = map[blocks.Shape]template{
	blocks.ShapeStairs2: {Boxes: []box{
		{[3]float32{0, 0, 0}, [3]float32{16, 8, 16}},
		{[3]float32{0, 8, 8}, [3]float32{16, 16, 16}},
	}},
	blocks.ShapeStairs3: {Boxes: []box{
		{[3]float32{0, 0, 0}, [3]float32{16, third, 16}},
		{[3]float32{0, third, third}, [3]float32{16, 2 * third, 16}},
		{[3]float32{0, 2 * third, 2 * third}, [3]float32{16, 16, 16}},
	}},
	blocks.ShapeQuarter: {Boxes: []box{
		{[3]float32{0, 0, 0}, [3]float32{16, 4, 16}},
	}},
	blocks.ShapeFencePost: {Boxes: []box{
		{[3]float32{6, 0, 6}, [3]float32{10, 16, 10}},
	}},
	blocks.ShapeFence1H: {Boxes: []box{
		{[3]float32{6, 0, 6}, [3]float32{10, 16, 10}},
		{[3]float32{0, 11, 7}, [3]float32{16, 14, 9}},
	}},
	blocks.ShapeFence2H: {Boxes: []box{
		{[3]float32{6, 0, 6}, [3]float32{10, 16, 10}},
		{[3]float32{0, 12, 7}, [3]float32{16, 15, 9}},
		{[3]float32{0, 5, 7}, [3]float32{16, 8, 9}},
	}},
	blocks.ShapeOuterCornerStairs2: {Boxes: []box{
		{[3]float32{0, 0, 0}, [3]float32{16, 8, 16}},
		{[3]float32{8, 8, 8}, [3]float32{16, 16, 16}},
	}},
	blocks.ShapeOuterCornerStairs3: {Boxes: []box{
		{[3]float32{0, 0, 0}, [3]float32{16, third, 16}},
		{[3]float32{third, third, third}, [3]float32{16, 2 * third, 16}},
		{[3]float32{2 * third, 2 * third, 2 * third}, [3]float32{16, 16, 16}},
	}},
	blocks.ShapeWedge45: {Polys: []poly{
		{voxel.FaceNegY, [][3]float32{{0, 0, 0}, {16, 0, 0}, {16, 0, 16}, {0, 0, 16}}},
		{voxel.FacePosZ, [][3]float32{{16, 0, 16}, {16, 16, 16}, {0, 16, 16}, {0, 0, 16}}},
		{voxel.FacePosY, [][3]float32{{0, 0, 0}, {0, 16, 16}, {16, 16, 16}, {16, 0, 0}}},
		{voxel.FaceNegX, [][3]float32{{0, 0, 0}, {0, 0, 16}, {0, 16, 16}}},
		{voxel.FacePosX, [][3]float32{{16, 0, 0}, {16, 16, 16}, {16, 0, 16}}},
	}},
	blocks.ShapeCross: {Polys: []poly{
		{voxel.FaceNegZ, [][3]float32{{0, 0, 0}, {16, 0, 16}, {16, 16, 16}, {0, 16, 0}}},
		{voxel.FacePosZ, [][3]float32{{16, 0, 16}, {0, 0, 0}, {0, 16, 0}, {16, 16, 16}}},
		{voxel.FaceNegX, [][3]float32{{16, 0, 0}, {0, 0, 16}, {0, 16, 16}, {16, 16, 0}}},
		{voxel.FacePosX, [][3]float32{{0, 0, 16}, {16, 0, 0}, {16, 16, 0}, {0, 16, 16}}},
	}},
}

// rotatePoint turns a template point around the block's vertical axis and
// applies the vertical flip of variant 1.
func rotatePoint(p [3]float32, rotation, variant uint8) [3]float32 {
	for r := uint8(0); r < rotation%4; r++ {
		p[0], p[2] = 16-p[2], p[0]
	}
	if variant == 1 {
		p[1] = 16 - p[1]
	}
	return p
}

func transformFace(f voxel.Face, rotation, variant uint8) voxel.Face {
	f = blocks.RotateFace(f, rotation)
	if variant == 1 && f.Axis() == 1 {
		f = f.Opposite()
	}
	return f
}

// buildTemplates emits per-voxel geometry for shapes that are not greedy meshed.
func (b *Builder) buildTemplates(src *source, m *Mesh) {
	o := m.Coord.Origin()
	for y := 0; y < size; y++ {
		for z := 0; z < size; z++ {
			for x := 0; x < size; x++ {
				vx := src.c.Voxel(x, y, z)
				bt, ok := b.blockFor(vx)
				if !ok || bt.Shape.Greedy() {
					continue
				}
				tpl, ok := templates[bt.Shape]
				if !ok {
					continue
				}
				base := [3]float32{float32(o.X + x), float32(o.Y + y), float32(o.Z + z)}
				for _, bx := range tpl.Boxes {
					b.emitBox(src, m, bt, vx, x, y, z, base, bx)
				}
				for _, p := range tpl.Polys {
					emitPoly(m, bt, vx, base, p)
				}
			}
		}
	}
}

func (b *Builder) emitBox(src *source, m *Mesh, bt *blocks.BlockType, vx voxel.Voxel, x, y, z int, base [3]float32, bx box) {
	p0 := rotatePoint(bx.From, vx.Rotation, vx.Variant)
	p1 := rotatePoint(bx.To, vx.Rotation, vx.Variant)
	var lo, hi [3]float32
	for k := 0; k < 3; k++ {
		lo[k], hi[k] = min(p0[k], p1[k]), max(p0[k], p1[k])
	}

	for _, f := range voxel.Faces {
		a := f.Axis()
		u, v := (a+1)%3, (a+2)%3
		plane := lo[a]
		if f.Positive() {
			plane = hi[a]
		}
		onBoundary := (f.Positive() && plane == 16) || (!f.Positive() && plane == 0)
		if onBoundary && !b.visible(src, bt, vx, x, y, z, f) {
			continue
		}

		flo, fhi := lo, hi
		flo[a], fhi[a] = plane, plane
		for k := 0; k < 3; k++ {
			flo[k] = base[k] + flo[k]/16
			fhi[k] = base[k] + fhi[k]/16
		}
		m.Quads = append(m.Quads, Quad{
			Face:     f,
			Corners:  rectCorners(flo, fhi, u, v, f.Positive()),
			Size:     [2]float32{fhi[u] - flo[u], fhi[v] - flo[v]},
			Block:    bt.ID,
			Rotation: vx.Rotation,
			Texture:  bt.TextureIndex(f, vx.Rotation),
		})
	}
}

func emitPoly(m *Mesh, bt *blocks.BlockType, vx voxel.Voxel, base [3]float32, p poly) {
	n := len(p.Corners)
	pts := make([][3]float32, n)
	for i, c := range p.Corners {
		pts[i] = rotatePoint(c, vx.Rotation, vx.Variant)
	}
	if vx.Variant == 1 {
		// mirroring flips the winding
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}

	q := Quad{
		Face:     transformFace(p.Face, vx.Rotation, vx.Variant),
		Size:     [2]float32{1, 1},
		Block:    bt.ID,
		Rotation: vx.Rotation,
		Triangle: n == 3,
	}
	q.Texture = bt.TextureIndex(q.Face, vx.Rotation)
	for i := 0; i < 4; i++ {
		c := pts[min(i, n-1)]
		q.Corners[i] = [3]float32{base[0] + c[0]/16, base[1] + c[1]/16, base[2] + c[2]/16}
	}
	m.Quads = append(m.Quads, q)
}
