package picking

import (
	gomath "math"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Hit is the result of a voxel ray cast.
type Hit struct {
	Pos      voxel.Pos  // the block that was hit
	Face     voxel.Face // face of Pos the ray entered through
	Distance float32
}

// Adjacent returns the empty cell in front of the hit face, where a new block goes.
func (h Hit) Adjacent() voxel.Pos {
	n := h.Face.Normal()
	return h.Pos.Add(n[0], n[1], n[2])
}

// Solid reports whether a cell stops the ray.
type Solid func(p voxel.Pos) bool

// CastVoxels walks the grid cells crossed by the ray (Amanatides-Woo) up to
// maxDist and returns the first solid cell. The starting cell is never hit.
func CastVoxels(r Ray, maxDist float32, solid Solid) (Hit, bool) {
	if maxDist <= 0 || r.Direction.Len() == 0 {
		return Hit{}, false
	}

	cell := [3]int{}
	step := [3]int{}
	tMax := [3]float32{}
	tDelta := [3]float32{}
	inf := float32(gomath.Inf(1))

	for i := 0; i < 3; i++ {
		cell[i] = int(gomath.Floor(float64(r.Origin[i])))
		d := r.Direction[i]
		switch {
		case d > 0:
			step[i] = 1
			tMax[i] = (float32(cell[i]+1) - r.Origin[i]) / d
			tDelta[i] = 1 / d
		case d < 0:
			step[i] = -1
			tMax[i] = (r.Origin[i] - float32(cell[i])) / -d
			tDelta[i] = -1 / d
		default:
			tMax[i] = inf
			tDelta[i] = inf
		}
	}

	// entry faces: stepping +x enters the next cell through its -x face
	entry := [3][2]voxel.Face{
		{voxel.FaceNegX, voxel.FacePosX},
		{voxel.FaceNegY, voxel.FacePosY},
		{voxel.FaceNegZ, voxel.FacePosZ},
	}

	for {
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		t := tMax[axis]
		if t > maxDist {
			return Hit{}, false
		}
		cell[axis] += step[axis]
		tMax[axis] += tDelta[axis]

		p := voxel.Pos{X: cell[0], Y: cell[1], Z: cell[2]}
		if solid(p) {
			face := entry[axis][0]
			if step[axis] < 0 {
				face = entry[axis][1]
			}
			return Hit{Pos: p, Face: face, Distance: t}, true
		}
	}
}
