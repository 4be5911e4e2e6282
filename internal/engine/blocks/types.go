// Package blocks provides the block type registry shared by meshing, import and editing.
package blocks

import (
	"fmt"
	"strings"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Shape is the geometric form of a block.
type Shape uint8

const (
	ShapeCube Shape = iota
	ShapeHalfSlab
	ShapeWedge45
	ShapeStairs2
	ShapeStairs3
	ShapeQuarter
	ShapeFencePost
	ShapeCross
	ShapeFence1H
	ShapeFence2H
	ShapeOuterCornerStairs2
	ShapeOuterCornerStairs3
)

var shapeNames = map[Shape]string{
	ShapeCube:               "cube",
	ShapeHalfSlab:           "half_slab",
	ShapeWedge45:            "wedge45",
	ShapeStairs2:            "stairs2",
	ShapeStairs3:            "stairs3",
	ShapeQuarter:            "quarter",
	ShapeFencePost:          "fence_post",
	ShapeCross:              "cross",
	ShapeFence1H:            "fence1h",
	ShapeFence2H:            "fence2h",
	ShapeOuterCornerStairs2: "outer_corner_stairs2",
	ShapeOuterCornerStairs3: "outer_corner_stairs3",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

// ParseShape converts a catalog shape name into a Shape.
func ParseShape(name string) (Shape, error) {
	if name == "" {
		return ShapeCube, nil
	}
	n := strings.ToLower(strings.TrimSpace(name))
	for s, sn := range shapeNames {
		if sn == n {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownShape, name)
}

// Greedy reports whether faces of this shape may be merged by the greedy mesher.
func (s Shape) Greedy() bool {
	return s == ShapeCube || s == ShapeHalfSlab
}

// TextureLayout tells how a block's textures map onto its faces.
type TextureLayout uint8

const (
	// LayoutSingle uses one texture for every face.
	LayoutSingle TextureLayout = iota
	// LayoutMultiFace has a texture per face.
	LayoutMultiFace
)

// BlockType is an immutable block definition.
type BlockType struct {
	ID          voxel.BlockID
	Name        string
	Shape       Shape
	Layout      TextureLayout
	Textures    [6]string // indexed by voxel.Face
	LightLevel  int
	Transparent bool
	Instanced   bool
	Custom      bool

	textureIdx [6]int
}

// sideCycle lists side faces clockwise seen from above: north, east, south, west.
var sideCycle = [4]voxel.Face{voxel.FaceNegZ, voxel.FacePosX, voxel.FacePosZ, voxel.FaceNegX}

// RotateFace maps a block-local face to world space for a yaw rotation.
func RotateFace(f voxel.Face, rotation uint8) voxel.Face {
	for i, s := range sideCycle {
		if s == f {
			return sideCycle[(i+int(rotation%4))%4]
		}
	}
	return f
}

// UnrotateFace maps a world-space face back to the block-local face.
func UnrotateFace(f voxel.Face, rotation uint8) voxel.Face {
	for i, s := range sideCycle {
		if s == f {
			return sideCycle[(i-int(rotation%4)+4)%4]
		}
	}
	return f
}

// Texture returns the texture name shown on a world-space face.
func (b *BlockType) Texture(f voxel.Face, rotation uint8) string {
	if b.Layout == LayoutSingle {
		return b.Textures[0]
	}
	return b.Textures[UnrotateFace(f, rotation)]
}

// TextureIndex returns the registry texture index shown on a world-space face.
func (b *BlockType) TextureIndex(f voxel.Face, rotation uint8) int {
	if b.Layout == LayoutSingle {
		return b.textureIdx[0]
	}
	return b.textureIdx[UnrotateFace(f, rotation)]
}

// FullFace reports whether the block fully covers and hides the given world-space face.
func (b *BlockType) FullFace(f voxel.Face, v voxel.Voxel) bool {
	if b.Transparent {
		return false
	}
	switch b.Shape {
	case ShapeCube:
		return true
	case ShapeHalfSlab:
		if v.Variant == 1 {
			return f == voxel.FacePosY
		}
		return f == voxel.FaceNegY
	default:
		return false
	}
}

// Occludes reports whether a block of this type, placed next to a face of
// another block, hides that face. other may be nil when unknown.
func (b *BlockType) Occludes(f voxel.Face, v voxel.Voxel, other *BlockType) bool {
	if b.FullFace(f, v) {
		return true
	}
	// Adjacent transparent blocks of the same type merge into one volume.
	return b.Transparent && other != nil && other.ID == b.ID && b.Shape == ShapeCube && other.Shape == ShapeCube
}
