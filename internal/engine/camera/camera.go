// Package camera provides camera implementations for 3D rendering.
package camera

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is what the renderer and scheduler need from any camera.
type Camera interface {
	Position() mgl32.Vec3
	ViewMatrix() mgl32.Mat4
	Forward() mgl32.Vec3
}

// FlyCamera moves freely through the world, steered by mouse look.
type FlyCamera struct {
	Pos   mgl32.Vec3
	Yaw   float32 // radians, 0 looks toward -Z
	Pitch float32 // radians, positive looks up

	Speed           float32 // blocks per second
	LookSensitivity float32
	BoostMultiplier float32
	MinPitch        float32
	MaxPitch        float32
}

// NewFlyCamera creates a fly camera with default settings.
func NewFlyCamera(pos mgl32.Vec3) *FlyCamera {
	return &FlyCamera{
		Pos:             pos,
		Speed:           12,
		LookSensitivity: 0.0025,
		BoostMultiplier: 4,
		MinPitch:        -1.55,
		MaxPitch:        1.55,
	}
}

// Position returns the camera position in world space.
func (c *FlyCamera) Position() mgl32.Vec3 {
	return c.Pos
}

// Forward returns the unit view direction.
func (c *FlyCamera) Forward() mgl32.Vec3 {
	cp := float32(gomath.Cos(float64(c.Pitch)))
	return mgl32.Vec3{
		-float32(gomath.Sin(float64(c.Yaw))) * cp,
		float32(gomath.Sin(float64(c.Pitch))),
		-float32(gomath.Cos(float64(c.Yaw))) * cp,
	}
}

// Right returns the horizontal right vector.
func (c *FlyCamera) Right() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(gomath.Cos(float64(c.Yaw))),
		0,
		-float32(gomath.Sin(float64(c.Yaw))),
	}
}

// ViewMatrix returns the view matrix for this camera.
func (c *FlyCamera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Pos, c.Pos.Add(c.Forward()), mgl32.Vec3{0, 1, 0})
}

// HandleLook turns the camera by a mouse delta in pixels.
func (c *FlyCamera) HandleLook(deltaX, deltaY float32) {
	c.Yaw -= deltaX * c.LookSensitivity
	c.Pitch -= deltaY * c.LookSensitivity
	c.Pitch = mgl32.Clamp(c.Pitch, c.MinPitch, c.MaxPitch)
}

// HandleMovement moves the camera. forward and right follow the view on the
// horizontal plane, up is world vertical. dt is in seconds.
func (c *FlyCamera) HandleMovement(forward, right, up, dt float32, boost bool) {
	speed := c.Speed * dt
	if boost {
		speed *= c.BoostMultiplier
	}
	f := c.Forward()
	flat := mgl32.Vec3{f[0], 0, f[2]}
	if l := flat.Len(); l > 0 {
		flat = flat.Mul(1 / l)
	}
	move := flat.Mul(forward).Add(c.Right().Mul(right)).Add(mgl32.Vec3{0, up, 0})
	c.Pos = c.Pos.Add(move.Mul(speed))
}

// OrbitCamera orbits around a center point. The editor uses it to frame
// imported terrain.
type OrbitCamera struct {
	Center mgl32.Vec3

	// Spherical coordinates
	Distance  float32 // Distance from center
	RotationX float32 // Pitch (vertical angle, radians)
	RotationY float32 // Yaw (horizontal angle, radians)

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        64.0,
		RotationX:       0.5,
		MinDistance:     4.0,
		MaxDistance:     1024.0,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() mgl32.Vec3 {
	x := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Sin(float64(c.RotationY)))
	y := c.Distance * float32(gomath.Sin(float64(c.RotationX)))
	z := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Cos(float64(c.RotationY)))
	return c.Center.Add(mgl32.Vec3{x, y, z})
}

// Forward returns the unit direction from the camera to its center.
func (c *OrbitCamera) Forward() mgl32.Vec3 {
	return c.Center.Sub(c.Position()).Normalize()
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), c.Center, mgl32.Vec3{0, 1, 0})
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX += deltaY * c.DragSensitivity
	c.RotationX = mgl32.Clamp(c.RotationX, c.MinPitch, c.MaxPitch)
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = mgl32.Clamp(c.Distance, c.MinDistance, c.MaxDistance)
}

// FitToBounds adjusts camera to view the given bounding box.
func (c *OrbitCamera) FitToBounds(lo, hi mgl32.Vec3) {
	c.Center = lo.Add(hi).Mul(0.5)
	size := hi.Sub(lo)
	c.Distance = mgl32.Clamp(max(size[0], size[2])*1.2, c.MinDistance, c.MaxDistance)
	c.RotationX = 0.6 // Look down at ~35 degrees
	c.RotationY = 0.0
}

// Projection returns a perspective projection for the given viewport.
func Projection(fovDeg float32, width, height int, near, far float32) mgl32.Mat4 {
	aspect := float32(width) / float32(max(height, 1))
	return mgl32.Perspective(mgl32.DegToRad(fovDeg), aspect, near, far)
}
