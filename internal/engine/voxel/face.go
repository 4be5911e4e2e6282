package voxel

// Face is one of the six axis-aligned directions.
type Face uint8

const (
	FacePosX Face = iota // east
	FaceNegX             // west
	FacePosY             // top
	FaceNegY             // bottom
	FacePosZ             // south
	FaceNegZ             // north
)

// Faces lists the directions in meshing order.
var Faces = [6]Face{FacePosX, FaceNegX, FacePosY, FaceNegY, FacePosZ, FaceNegZ}

var faceNormals = [6][3]int{
	{1, 0, 0},
	{-1, 0, 0},
	{0, 1, 0},
	{0, -1, 0},
	{0, 0, 1},
	{0, 0, -1},
}

var faceNames = [6]string{"+x", "-x", "+y", "-y", "+z", "-z"}

// Normal returns the unit integer normal of the face.
func (f Face) Normal() [3]int {
	return faceNormals[f]
}

// Axis returns 0, 1 or 2 for the x, y or z axis.
func (f Face) Axis() int {
	return int(f) / 2
}

// Positive reports whether the face points along the positive axis.
func (f Face) Positive() bool {
	return f%2 == 0
}

// Opposite returns the face pointing the other way.
func (f Face) Opposite() Face {
	if f.Positive() {
		return f + 1
	}
	return f - 1
}

func (f Face) String() string {
	if int(f) < len(faceNames) {
		return faceNames[f]
	}
	return "?"
}

// Region is an inclusive box of world positions.
type Region struct {
	Min, Max Pos
}

// Normalize returns the region with min <= max on every axis.
func (r Region) Normalize() Region {
	if r.Min.X > r.Max.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Min.Y > r.Max.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	if r.Min.Z > r.Max.Z {
		r.Min.Z, r.Max.Z = r.Max.Z, r.Min.Z
	}
	return r
}

// Contains reports whether p lies inside the region. The region must be normalized.
func (r Region) Contains(p Pos) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}
