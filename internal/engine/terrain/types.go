// Package terrain turns chunk voxels into renderable geometry.
package terrain

import (
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Vertex represents a chunk mesh vertex with all attributes.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32 // in block units, textures repeat across merged quads
	Shade    float32    // constant per face direction
}

// TextureGroup groups triangles by texture for batched rendering.
type TextureGroup struct {
	TextureID  int
	StartIndex int32
	IndexCount int32
}

// Quad is one emitted face. Triangles reuse the first three corners and
// leave the fourth equal to the third.
type Quad struct {
	Face     voxel.Face
	Corners  [4][3]float32
	Size     [2]float32
	Block    voxel.BlockID
	Rotation uint8
	Texture  int
	Triangle bool
}

// Mesh holds the complete chunk mesh data ready for GPU upload.
type Mesh struct {
	Coord    voxel.ChunkCoord
	Quads    []Quad
	Vertices []Vertex
	Indices  []uint32
	Groups   []TextureGroup
	Bounds   Bounds
}

// Empty reports whether the mesh has no geometry.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Indices) == 0
}

// Bounds holds the axis-aligned bounding box of the mesh.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// faceShade darkens faces by direction so edges read without lighting.
var faceShade = [6]float32{0.8, 0.8, 1.0, 0.5, 0.6, 0.6}
