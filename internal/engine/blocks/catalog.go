package blocks

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// CatalogEntry is one block definition as written in a catalog file.
type CatalogEntry struct {
	ID          uint16            `yaml:"id"`
	Name        string            `yaml:"name"`
	Shape       string            `yaml:"shape"`
	Texture     string            `yaml:"texture"`
	Faces       map[string]string `yaml:"faces"`
	LightLevel  int               `yaml:"light_level"`
	Transparent bool              `yaml:"transparent"`
	Instanced   bool              `yaml:"instanced"`
}

// Catalog is the on-disk block catalog.
type Catalog struct {
	Blocks []CatalogEntry `yaml:"blocks"`
}

var faceKeys = map[string]voxel.Face{
	"east":   voxel.FacePosX,
	"west":   voxel.FaceNegX,
	"top":    voxel.FacePosY,
	"bottom": voxel.FaceNegY,
	"south":  voxel.FacePosZ,
	"north":  voxel.FaceNegZ,
}

// BlockType converts a catalog entry into a block type ready for Register.
func (e CatalogEntry) BlockType() (BlockType, error) {
	shape, err := ParseShape(e.Shape)
	if err != nil {
		return BlockType{}, fmt.Errorf("block %d %q: %w", e.ID, e.Name, err)
	}
	bt := BlockType{
		ID:          voxel.BlockID(e.ID),
		Name:        e.Name,
		Shape:       shape,
		LightLevel:  e.LightLevel,
		Transparent: e.Transparent,
		Instanced:   e.Instanced,
	}
	if len(e.Faces) == 0 {
		bt.Textures[0] = e.Texture
		return bt, nil
	}
	// "sides" fills the four horizontal faces, the per-face keys override it.
	if sides, ok := e.Faces["sides"]; ok {
		for _, f := range sideCycle {
			bt.Textures[f] = sides
		}
	}
	for key, tex := range e.Faces {
		if key == "sides" {
			continue
		}
		f, ok := faceKeys[key]
		if !ok {
			return BlockType{}, fmt.Errorf("block %d %q: unknown face %q", e.ID, e.Name, key)
		}
		bt.Textures[f] = tex
	}
	for i := range bt.Textures {
		if bt.Textures[i] == "" {
			bt.Textures[i] = e.Texture
		}
	}
	return bt, nil
}

// LoadCatalog reads a YAML block catalog and registers every entry.
func LoadCatalog(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	return r.RegisterCatalog(cat)
}

// RegisterCatalog registers every entry of an already parsed catalog.
func (r *Registry) RegisterCatalog(cat Catalog) error {
	for _, e := range cat.Blocks {
		bt, err := e.BlockType()
		if err != nil {
			return err
		}
		if err := r.Register(bt); err != nil {
			return fmt.Errorf("register %q: %w", e.Name, err)
		}
	}
	return nil
}

// Default block ids of the built-in catalog.
const (
	Stone  voxel.BlockID = 1
	Dirt   voxel.BlockID = 2
	Grass  voxel.BlockID = 3
	Sand   voxel.BlockID = 4
	Glass  voxel.BlockID = 5
	Planks voxel.BlockID = 6
	Slab   voxel.BlockID = 7
	Stairs voxel.BlockID = 8
	Torch  voxel.BlockID = 9
	Plant  voxel.BlockID = 10
	Fence  voxel.BlockID = 11
	Wedge  voxel.BlockID = 12
)

// DefaultCatalog returns the built-in block set used when no catalog file is configured.
func DefaultCatalog() Catalog {
	return Catalog{Blocks: []CatalogEntry{
		{ID: uint16(Stone), Name: "stone", Texture: "stone"},
		{ID: uint16(Dirt), Name: "dirt", Texture: "dirt"},
		{ID: uint16(Grass), Name: "grass", Texture: "grass_side", Faces: map[string]string{
			"top": "grass_top", "bottom": "dirt",
		}},
		{ID: uint16(Sand), Name: "sand", Texture: "sand"},
		{ID: uint16(Glass), Name: "glass", Texture: "glass", Transparent: true},
		{ID: uint16(Planks), Name: "planks", Texture: "planks"},
		{ID: uint16(Slab), Name: "stone_slab", Shape: "half_slab", Texture: "stone"},
		{ID: uint16(Stairs), Name: "plank_stairs", Shape: "stairs2", Texture: "planks"},
		{ID: uint16(Torch), Name: "torch", Shape: "cross", Texture: "torch", LightLevel: 14, Instanced: true},
		{ID: uint16(Plant), Name: "tall_grass", Shape: "cross", Texture: "tall_grass", Instanced: true},
		{ID: uint16(Fence), Name: "fence", Shape: "fence_post", Texture: "planks", Instanced: true},
		{ID: uint16(Wedge), Name: "stone_wedge", Shape: "wedge45", Texture: "stone"},
	}}
}

// NewDefaultRegistry returns a registry holding the built-in catalog.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	if err := r.RegisterCatalog(DefaultCatalog()); err != nil {
		panic(err)
	}
	return r
}
