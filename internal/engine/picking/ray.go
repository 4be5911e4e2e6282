// Package picking provides ray casting against voxels and entity bounds.
package picking

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ray represents a ray in 3D space with origin and direction.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3 // Normalized direction
}

// NewRay builds a ray, normalizing the direction.
func NewRay(origin, dir mgl32.Vec3) Ray {
	if l := dir.Len(); l > 0 {
		dir = dir.Mul(1 / l)
	}
	return Ray{Origin: origin, Direction: dir}
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// AABB represents an axis-aligned bounding box.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// ScreenToRay converts screen coordinates to a world-space ray.
// screenX, screenY are pixel coordinates, viewportW/H are viewport dimensions.
// invViewProj is the inverse of the view-projection matrix.
func ScreenToRay(screenX, screenY, viewportW, viewportH float32, invViewProj mgl32.Mat4) Ray {
	// Convert screen coords to normalized device coords (-1 to 1)
	ndcX := 2.0*screenX/viewportW - 1.0
	ndcY := 1.0 - 2.0*screenY/viewportH // Flip Y

	nearWorld := invViewProj.Mul4x1(mgl32.Vec4{ndcX, ndcY, -1.0, 1.0})
	farWorld := invViewProj.Mul4x1(mgl32.Vec4{ndcX, ndcY, 1.0, 1.0})

	// Perspective divide
	if nearWorld[3] != 0 {
		nearWorld = nearWorld.Mul(1 / nearWorld[3])
	}
	if farWorld[3] != 0 {
		farWorld = farWorld.Mul(1 / farWorld[3])
	}

	origin := nearWorld.Vec3()
	return NewRay(origin, farWorld.Vec3().Sub(origin))
}

// IntersectAABB tests ray intersection with an axis-aligned bounding box.
// Returns the distance to intersection (t) and whether intersection occurred.
// If the ray starts inside the box, returns the exit distance.
func (r Ray) IntersectAABB(box AABB) (t float32, hit bool) {
	tmin := float32(-gomath.MaxFloat32)
	tmax := float32(gomath.MaxFloat32)

	for i := 0; i < 3; i++ {
		if r.Direction[i] != 0 {
			t1 := (box.Min[i] - r.Origin[i]) / r.Direction[i]
			t2 := (box.Max[i] - r.Origin[i]) / r.Direction[i]
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			if t1 > tmin {
				tmin = t1
			}
			if t2 < tmax {
				tmax = t2
			}
		} else if r.Origin[i] < box.Min[i] || r.Origin[i] > box.Max[i] {
			return 0, false
		}
	}

	// Check if intersection is valid
	if tmax < tmin || tmax < 0 {
		return 0, false
	}

	// Return entry point, or exit point if starting inside
	if tmin < 0 {
		return tmax, true
	}
	return tmin, true
}

// NewAABB creates an AABB from two corners in any order.
func NewAABB(a, b mgl32.Vec3) AABB {
	box := AABB{Min: a, Max: b}
	for i := 0; i < 3; i++ {
		if box.Min[i] > box.Max[i] {
			box.Min[i], box.Max[i] = box.Max[i], box.Min[i]
		}
	}
	return box
}

// TransformAABB transforms a local AABB by position and scale to world space.
func TransformAABB(local AABB, position, scale mgl32.Vec3) AABB {
	return NewAABB(
		mgl32.Vec3{local.Min[0]*scale[0] + position[0], local.Min[1]*scale[1] + position[1], local.Min[2]*scale[2] + position[2]},
		mgl32.Vec3{local.Max[0]*scale[0] + position[0], local.Max[1]*scale[1] + position[1], local.Max[2]*scale[2] + position[2]},
	)
}
