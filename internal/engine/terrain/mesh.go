package terrain

import (
	"math"
	"sort"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

const size = voxel.ChunkSize

// Options controls mesh generation.
type Options struct {
	// Greedy merges coplanar faces sharing a key into maximal rectangles.
	Greedy bool
	// SkipInstanced leaves blocks flagged Instanced to the instance renderer.
	SkipInstanced bool
}

// Builder builds chunk meshes. Output depends only on the chunk voxels, the
// neighbour boundary voxels, the registry and the options.
type Builder struct {
	reg  *blocks.Registry
	opts Options
}

// NewBuilder creates a mesh builder.
func NewBuilder(reg *blocks.Registry, opts Options) *Builder {
	return &Builder{reg: reg, opts: opts}
}

// Options returns the current options.
func (b *Builder) Options() Options {
	return b.opts
}

// SetOptions replaces the options. Callers re-mesh resident chunks afterwards.
func (b *Builder) SetOptions(opts Options) {
	b.opts = opts
}

// source resolves voxels of a chunk and its six neighbours in local coordinates.
type source struct {
	c  *chunk.Chunk
	nb [6]*chunk.Chunk
}

// at returns the voxel at a local position that may be one step outside the chunk.
// Absent neighbours read as empty.
func (s *source) at(x, y, z int) voxel.Voxel {
	var f voxel.Face
	switch {
	case x < 0:
		f, x = voxel.FaceNegX, x+size
	case x >= size:
		f, x = voxel.FacePosX, x-size
	case y < 0:
		f, y = voxel.FaceNegY, y+size
	case y >= size:
		f, y = voxel.FacePosY, y-size
	case z < 0:
		f, z = voxel.FaceNegZ, z+size
	case z >= size:
		f, z = voxel.FacePosZ, z-size
	default:
		return s.c.Voxel(x, y, z)
	}
	n := s.nb[f]
	if n == nil {
		return voxel.Voxel{}
	}
	return n.Voxel(x, y, z)
}

// slab geometry classes
const (
	classFull uint8 = iota
	classBottom
	classTop
)

// cellKey identifies faces that may be merged. A zero block means inactive.
type cellKey struct {
	block    voxel.BlockID
	rotation uint8
	texture  int32
	class    uint8
}

// Build meshes a chunk. nb holds the face neighbours in voxel.Faces order.
func (b *Builder) Build(c *chunk.Chunk, nb [6]*chunk.Chunk) *Mesh {
	src := &source{c: c, nb: nb}
	m := &Mesh{Coord: c.Coord}
	if c.Empty() {
		return m
	}

	for _, f := range voxel.Faces {
		b.buildDirection(src, f, m)
	}
	b.buildTemplates(src, m)

	finish(m)
	return m
}

// blockFor resolves the registry entry for a voxel, skipping instanced blocks
// when another renderer owns them.
func (b *Builder) blockFor(v voxel.Voxel) (*blocks.BlockType, bool) {
	if v.IsEmpty() {
		return nil, false
	}
	bt := b.reg.Resolve(v.Block)
	if b.opts.SkipInstanced && bt.Instanced {
		return nil, false
	}
	return bt, true
}

// visible reports whether face f of the voxel at (x,y,z) is exposed.
func (b *Builder) visible(src *source, bt *blocks.BlockType, v voxel.Voxel, x, y, z int, f voxel.Face) bool {
	n := f.Normal()
	nv := src.at(x+n[0], y+n[1], z+n[2])
	if nv.IsEmpty() {
		return true
	}
	nbt := b.reg.Resolve(nv.Block)
	return !nbt.Occludes(f.Opposite(), nv, bt)
}

func slabClass(bt *blocks.BlockType, v voxel.Voxel) uint8 {
	if bt.Shape != blocks.ShapeHalfSlab {
		return classFull
	}
	if v.Variant == 1 {
		return classTop
	}
	return classBottom
}

// innerFace reports whether f is the slab face that lies inside the cell.
func innerFace(class uint8, f voxel.Face) bool {
	return (class == classBottom && f == voxel.FacePosY) || (class == classTop && f == voxel.FaceNegY)
}

// buildDirection runs the mask and merge passes for one face direction.
func (b *Builder) buildDirection(src *source, f voxel.Face, m *Mesh) {
	a := f.Axis()
	u := (a + 1) % 3
	v := (a + 2) % 3
	var mask [size * size]cellKey

	for d := 0; d < size; d++ {
		for j := 0; j < size; j++ {
			for i := 0; i < size; i++ {
				var p [3]int
				p[a], p[u], p[v] = d, i, j
				mask[j*size+i] = b.cell(src, p, f)
			}
		}
		b.merge(&mask, f, d, u, v, m)
	}
}

func (b *Builder) cell(src *source, p [3]int, f voxel.Face) cellKey {
	vx := src.c.Voxel(p[0], p[1], p[2])
	bt, ok := b.blockFor(vx)
	if !ok || !bt.Shape.Greedy() {
		return cellKey{}
	}
	class := slabClass(bt, vx)
	if !innerFace(class, f) && !b.visible(src, bt, vx, p[0], p[1], p[2], f) {
		return cellKey{}
	}
	return cellKey{
		block:    bt.ID,
		rotation: vx.Rotation,
		texture:  int32(bt.TextureIndex(f, vx.Rotation)),
		class:    class,
	}
}

// merge scans the mask row by row and emits one quad per maximal rectangle.
// With greedy meshing disabled every active cell becomes its own quad.
func (b *Builder) merge(mask *[size * size]cellKey, f voxel.Face, d, u, v int, m *Mesh) {
	for j := 0; j < size; j++ {
		for i := 0; i < size; {
			key := mask[j*size+i]
			if key.block == voxel.Empty {
				i++
				continue
			}
			// Slab sides only cover part of the cell height and never stretch along y.
			partial := key.class != classFull && f.Axis() != 1
			growU := b.opts.Greedy && !(partial && u == 1)
			growV := b.opts.Greedy && !(partial && v == 1)

			w := 1
			if growU {
				for i+w < size && mask[j*size+i+w] == key {
					w++
				}
			}
			h := 1
			if growV {
			grow:
				for j+h < size {
					for k := 0; k < w; k++ {
						if mask[(j+h)*size+i+k] != key {
							break grow
						}
					}
					h++
				}
			}

			for jj := j; jj < j+h; jj++ {
				for ii := i; ii < i+w; ii++ {
					mask[jj*size+ii] = cellKey{}
				}
			}
			m.Quads = append(m.Quads, b.rectQuad(m.Coord, key, f, d, u, v, i, j, w, h))
			i += w
		}
	}
}

// rectQuad builds the world-space quad covering cells [i,i+w) x [j,j+h) of slice d.
func (b *Builder) rectQuad(coord voxel.ChunkCoord, key cellKey, f voxel.Face, d, u, v, i, j, w, h int) Quad {
	a := f.Axis()
	plane := float32(d)
	if f.Positive() {
		plane++
	}
	if innerFace(key.class, f) {
		plane = float32(d) + 0.5
	}

	lo := [3]float32{}
	hi := [3]float32{}
	lo[a], hi[a] = plane, plane
	lo[u], hi[u] = float32(i), float32(i+w)
	lo[v], hi[v] = float32(j), float32(j+h)
	if key.class != classFull && a != 1 {
		// side of a slab: restrict the y span to the occupied half
		y := lo[1]
		if key.class == classBottom {
			hi[1] = y + 0.5
		} else {
			lo[1] = y + 0.5
		}
	}

	o := coord.Origin()
	origin := [3]float32{float32(o.X), float32(o.Y), float32(o.Z)}
	for k := 0; k < 3; k++ {
		lo[k] += origin[k]
		hi[k] += origin[k]
	}
	q := Quad{
		Face:     f,
		Block:    key.block,
		Rotation: key.rotation,
		Texture:  int(key.texture),
		Size:     [2]float32{hi[u] - lo[u], hi[v] - lo[v]},
	}
	q.Corners = rectCorners(lo, hi, u, v, f.Positive())
	return q
}

// rectCorners orders the corners counter-clockwise as seen from outside.
func rectCorners(lo, hi [3]float32, u, v int, positive bool) [4][3]float32 {
	c := [4][3]float32{lo, lo, lo, lo}
	c[1][u] = hi[u]
	c[2][u], c[2][v] = hi[u], hi[v]
	c[3][v] = hi[v]
	if !positive {
		c[1], c[3] = c[3], c[1]
	}
	return c
}

// finish converts quads into vertex and index buffers grouped by texture.
func finish(m *Mesh) {
	if len(m.Quads) == 0 {
		return
	}
	byTexture := make(map[int][]uint32)
	m.Bounds = Bounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}

	for _, q := range m.Quads {
		base := uint32(len(m.Vertices))
		normal := quadNormal(q)
		uv := [4][2]float32{{0, 0}, {q.Size[0], 0}, {q.Size[0], q.Size[1]}, {0, q.Size[1]}}
		if !q.Face.Positive() && !q.Triangle {
			uv[1], uv[3] = uv[3], uv[1]
		}
		n := 4
		if q.Triangle {
			n = 3
		}
		for k := 0; k < n; k++ {
			m.Vertices = append(m.Vertices, Vertex{
				Position: q.Corners[k],
				Normal:   normal,
				TexCoord: uv[k],
				Shade:    faceShade[q.Face],
			})
			updateBounds(&m.Bounds, q.Corners[k])
		}
		idx := byTexture[q.Texture]
		idx = append(idx, base, base+1, base+2)
		if !q.Triangle {
			idx = append(idx, base, base+2, base+3)
		}
		byTexture[q.Texture] = idx
	}

	textures := make([]int, 0, len(byTexture))
	for t := range byTexture {
		textures = append(textures, t)
	}
	sort.Ints(textures)
	for _, t := range textures {
		idx := byTexture[t]
		m.Groups = append(m.Groups, TextureGroup{
			TextureID:  t,
			StartIndex: int32(len(m.Indices)),
			IndexCount: int32(len(idx)),
		})
		m.Indices = append(m.Indices, idx...)
	}
}

func quadNormal(q Quad) [3]float32 {
	c := q.Corners
	e1 := [3]float32{c[1][0] - c[0][0], c[1][1] - c[0][1], c[1][2] - c[0][2]}
	e2 := [3]float32{c[2][0] - c[0][0], c[2][1] - c[0][1], c[2][2] - c[0][2]}
	return normalize(cross(e1, e2))
}

// Helper functions

func updateBounds(b *Bounds, p [3]float32) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v [3]float32) [3]float32 {
	l := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
	if l < 0.0001 {
		return [3]float32{0, 1, 0}
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}
