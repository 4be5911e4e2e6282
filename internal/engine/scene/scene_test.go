package scene

import (
	"errors"
	"testing"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/instancing"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

func TestPaletteCoversRegistry(t *testing.T) {
	reg := blocks.NewDefaultRegistry()
	p := NewPalette(reg)
	if len(p) != len(reg.Textures()) {
		t.Fatalf("palette has %d colours for %d textures", len(p), len(reg.Textures()))
	}
	for i, name := range reg.Textures() {
		if p.At(i) != ColorFor(name) {
			t.Errorf("texture %q: colour %v, want %v", name, p.At(i), ColorFor(name))
		}
	}
	if p.At(-1) != knownColors[blocks.MissingTexture] || p.At(len(p)) != knownColors[blocks.MissingTexture] {
		t.Error("out of range index should be the missing colour")
	}
}

func TestColorForIsStable(t *testing.T) {
	a := ColorFor("custom_brick")
	if a != ColorFor("custom_brick") {
		t.Error("hashed colour changed between calls")
	}
	for i, c := range a {
		if c < 0.25 || c > 0.85 {
			t.Errorf("channel %d = %v outside the hashed range", i, c)
		}
	}
	if ColorFor("stone") != knownColors["stone"] {
		t.Error("known colour not used")
	}
}

func TestTemplateMesh(t *testing.T) {
	reg := blocks.NewDefaultRegistry()
	tests := []struct {
		name string
		key  instancing.Key
	}{
		{"torch", instancing.Key{Block: blocks.Torch}},
		{"fence rotated", instancing.Key{Block: blocks.Fence, Rotation: 1}},
		{"cube", instancing.Key{Block: blocks.Stone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := TemplateMesh(reg, tt.key)
			if m.Empty() {
				t.Fatal("template has no geometry")
			}
			for i := 0; i < 3; i++ {
				if m.Bounds.Min[i] < 0 || m.Bounds.Max[i] > 1 {
					t.Fatalf("bounds %v leave the unit cell", m.Bounds)
				}
			}
		})
	}

	if !TemplateMesh(reg, instancing.Key{}).Empty() {
		t.Error("empty block produced geometry")
	}
}

func TestResourceError(t *testing.T) {
	if glError(gl.NO_ERROR) != nil {
		t.Error("GL_NO_ERROR mapped to an error")
	}
	err := error(&ResourceError{Op: "upload chunk", Chunk: voxel.ChunkCoord{X: 1, Y: -2}, Err: glError(gl.OUT_OF_MEMORY)})
	if !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("%v does not wrap ErrOutOfMemory", err)
	}
	var re *ResourceError
	if !errors.As(err, &re) || re.Chunk.Y != -2 {
		t.Errorf("errors.As failed for %v", err)
	}
	if glError(gl.INVALID_OPERATION) == nil {
		t.Error("INVALID_OPERATION mapped to nil")
	}
}
