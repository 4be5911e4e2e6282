package blocks

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

func TestRegisterRejectsReservedAndDuplicate(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		bt   BlockType
		want error
	}{
		{"empty id", BlockType{ID: voxel.Empty, Textures: [6]string{"a"}}, ErrReservedID},
		{"missing id", BlockType{ID: MissingID, Textures: [6]string{"a"}}, ErrReservedID},
		{"no textures", BlockType{ID: 5}, ErrNoTextures},
		{"bad shape", BlockType{ID: 6, Shape: Shape(99), Textures: [6]string{"a"}}, ErrUnknownShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.bt); !errors.Is(err, tt.want) {
				t.Errorf("Register() = %v, want %v", err, tt.want)
			}
		})
	}

	if err := r.Register(BlockType{ID: 1, Textures: [6]string{"stone"}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(BlockType{ID: 1, Textures: [6]string{"dirt"}}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate Register() = %v, want ErrDuplicateID", err)
	}
}

func TestResolveMissing(t *testing.T) {
	r := NewDefaultRegistry()

	if bt := r.Resolve(Stone); bt.Name != "stone" {
		t.Errorf("Resolve(Stone) = %q", bt.Name)
	}
	bt := r.Resolve(500)
	if bt.ID != MissingID {
		t.Errorf("Resolve(500) id = %d, want MissingID", bt.ID)
	}
	if bt.Texture(voxel.FacePosY, 0) != MissingTexture {
		t.Errorf("missing texture = %q", bt.Texture(voxel.FacePosY, 0))
	}
}

func TestLayoutResolvedAtRegister(t *testing.T) {
	r := NewDefaultRegistry()

	stone, _ := r.Lookup(Stone)
	if stone.Layout != LayoutSingle {
		t.Errorf("stone layout = %d, want single", stone.Layout)
	}

	grass, _ := r.Lookup(Grass)
	if grass.Layout != LayoutMultiFace {
		t.Fatalf("grass layout = %d, want multi-face", grass.Layout)
	}
	if got := grass.Texture(voxel.FacePosY, 0); got != "grass_top" {
		t.Errorf("grass top = %q", got)
	}
	if got := grass.Texture(voxel.FaceNegY, 2); got != "dirt" {
		t.Errorf("grass bottom = %q", got)
	}
	if got := grass.Texture(voxel.FacePosX, 1); got != "grass_side" {
		t.Errorf("grass side = %q", got)
	}
	dirt, _ := r.Lookup(Dirt)
	if grass.TextureIndex(voxel.FaceNegY, 0) != dirt.TextureIndex(voxel.FacePosX, 0) {
		t.Error("grass bottom and dirt should share a texture index")
	}
}

func TestRotateFace(t *testing.T) {
	for rot := uint8(0); rot < 4; rot++ {
		for _, f := range voxel.Faces {
			if got := UnrotateFace(RotateFace(f, rot), rot); got != f {
				t.Errorf("rot %d: unrotate(rotate(%s)) = %s", rot, f, got)
			}
		}
	}
	if RotateFace(voxel.FaceNegZ, 1) != voxel.FacePosX {
		t.Error("north rotated once should face east")
	}
	if RotateFace(voxel.FacePosY, 3) != voxel.FacePosY {
		t.Error("top face must not rotate")
	}
}

func TestFullFace(t *testing.T) {
	r := NewDefaultRegistry()
	slab, _ := r.Lookup(Slab)
	glass, _ := r.Lookup(Glass)
	torch, _ := r.Lookup(Torch)

	if !slab.FullFace(voxel.FaceNegY, voxel.Voxel{Block: Slab}) {
		t.Error("bottom slab should cover its bottom face")
	}
	if slab.FullFace(voxel.FacePosY, voxel.Voxel{Block: Slab}) {
		t.Error("bottom slab should not cover its top face")
	}
	if !slab.FullFace(voxel.FacePosY, voxel.Voxel{Block: Slab, Variant: 1}) {
		t.Error("top slab should cover its top face")
	}
	if glass.FullFace(voxel.FacePosX, voxel.Of(Glass)) {
		t.Error("glass must not be opaque")
	}
	if !glass.Occludes(voxel.FacePosX, voxel.Of(Glass), glass) {
		t.Error("adjacent glass should hide the shared face")
	}
	if torch.FullFace(voxel.FaceNegY, voxel.Of(Torch)) {
		t.Error("cross shapes never occlude")
	}
}

func TestRegisterCustom(t *testing.T) {
	r := NewDefaultRegistry()

	id, err := r.RegisterCustom("marble", "marble")
	if err != nil {
		t.Fatalf("RegisterCustom() error = %v", err)
	}
	if id != FirstCustomID {
		t.Errorf("first custom id = %d, want %d", id, FirstCustomID)
	}
	id2, err := r.RegisterCustom("crate", "c_e", "c_w", "c_t", "c_b", "c_s", "c_n")
	if err != nil {
		t.Fatalf("RegisterCustom() error = %v", err)
	}
	if id2 != id+1 {
		t.Errorf("second custom id = %d, want %d", id2, id+1)
	}
	bt, _ := r.Lookup(id2)
	if !bt.Custom || bt.Layout != LayoutMultiFace {
		t.Errorf("unexpected custom block %+v", bt)
	}

	if _, err := r.RegisterCustom("bad", "a", "b"); err == nil {
		t.Error("expected error for two textures")
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.yaml")
	content := `blocks:
  - id: 20
    name: log
    texture: log_side
    faces:
      top: log_top
      bottom: log_top
  - id: 21
    name: lamp
    texture: lamp
    light_level: 15
  - id: 22
    name: rail
    shape: quarter
    texture: rail
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	if err := LoadCatalog(r, path); err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	log, _ := r.Lookup(20)
	if log.Texture(voxel.FacePosY, 0) != "log_top" || log.Texture(voxel.FaceNegZ, 0) != "log_side" {
		t.Errorf("unexpected log textures %v", log.Textures)
	}
	lamp, _ := r.Lookup(21)
	if lamp.LightLevel != 15 {
		t.Errorf("lamp light = %d", lamp.LightLevel)
	}
	rail, _ := r.Lookup(22)
	if rail.Shape != ShapeQuarter {
		t.Errorf("rail shape = %s", rail.Shape)
	}
}

func TestLoadCatalogUnknownShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.yaml")
	content := "blocks:\n  - id: 3\n    name: x\n    shape: sphere\n    texture: x\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadCatalog(NewRegistry(), path); !errors.Is(err, ErrUnknownShape) {
		t.Errorf("LoadCatalog() = %v, want ErrUnknownShape", err)
	}
}
