// Package debug provides debug visualization utilities.
package debug

import (
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// WireframeVertexCount is the number of vertices for a box wireframe (12 edges × 2).
const WireframeVertexCount = 24

// SelectionPadding keeps the selection outline from z-fighting the block faces.
const SelectionPadding = 0.004

// BoxWireframe creates line vertices for a wireframe box, format [x, y, z] per
// vertex. The box is grown by padding on every side.
func BoxWireframe(lo, hi [3]float32, padding float32) []float32 {
	for i := 0; i < 3; i++ {
		if lo[i] > hi[i] {
			lo[i], hi[i] = hi[i], lo[i]
		}
		lo[i] -= padding
		hi[i] += padding
	}
	minX, minY, minZ := lo[0], lo[1], lo[2]
	maxX, maxY, maxZ := hi[0], hi[1], hi[2]

	return []float32{
		// Bottom face
		minX, minY, minZ, maxX, minY, minZ,
		maxX, minY, minZ, maxX, minY, maxZ,
		maxX, minY, maxZ, minX, minY, maxZ,
		minX, minY, maxZ, minX, minY, minZ,
		// Top face
		minX, maxY, minZ, maxX, maxY, minZ,
		maxX, maxY, minZ, maxX, maxY, maxZ,
		maxX, maxY, maxZ, minX, maxY, maxZ,
		minX, maxY, maxZ, minX, maxY, minZ,
		// Vertical edges
		minX, minY, minZ, minX, maxY, minZ,
		maxX, minY, minZ, maxX, maxY, minZ,
		maxX, minY, maxZ, maxX, maxY, maxZ,
		minX, minY, maxZ, minX, maxY, maxZ,
	}
}

// BlockWireframe outlines the unit cell at p.
func BlockWireframe(p voxel.Pos) []float32 {
	lo := [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
	return BoxWireframe(lo, [3]float32{lo[0] + 1, lo[1] + 1, lo[2] + 1}, SelectionPadding)
}

// ChunkWireframes outlines every chunk in coords, concatenated in order.
func ChunkWireframes(coords []voxel.ChunkCoord) []float32 {
	out := make([]float32, 0, len(coords)*WireframeVertexCount*3)
	for _, c := range coords {
		o := c.Origin()
		lo := [3]float32{float32(o.X), float32(o.Y), float32(o.Z)}
		hi := [3]float32{lo[0] + chunk.Size, lo[1] + chunk.Size, lo[2] + chunk.Size}
		out = append(out, BoxWireframe(lo, hi, 0)...)
	}
	return out
}
