package blocks

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Registry errors.
var (
	ErrDuplicateID  = errors.New("block id already registered")
	ErrReservedID   = errors.New("block id is reserved")
	ErrUnknownShape = errors.New("unknown block shape")
	ErrNoTextures   = errors.New("block has no textures")
)

// MissingID is the reserved id of the missing-texture marker block.
const MissingID voxel.BlockID = 65535

// MissingTexture is the texture name of the missing-texture marker.
const MissingTexture = "missing"

// FirstCustomID is the first id handed out to user-created blocks.
const FirstCustomID voxel.BlockID = 1000

// Registry catalogs block types by id. Entries are immutable once registered.
type Registry struct {
	types      map[voxel.BlockID]*BlockType
	textures   []string
	textureIdx map[string]int
	missing    *BlockType
	nextCustom voxel.BlockID
}

// NewRegistry creates an empty registry holding only the missing marker.
func NewRegistry() *Registry {
	r := &Registry{
		types:      make(map[voxel.BlockID]*BlockType),
		textureIdx: make(map[string]int),
		nextCustom: FirstCustomID,
	}
	r.missing = &BlockType{
		ID:       MissingID,
		Name:     "missing",
		Shape:    ShapeCube,
		Layout:   LayoutSingle,
		Textures: [6]string{MissingTexture},
	}
	r.resolveTextures(r.missing)
	return r
}

// Register validates and inserts a block type. Shape and texture layout are
// resolved here once so meshing never looks them up again.
func (r *Registry) Register(bt BlockType) error {
	if bt.ID == voxel.Empty || bt.ID == MissingID {
		return fmt.Errorf("%w: %d", ErrReservedID, bt.ID)
	}
	if _, exists := r.types[bt.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, bt.ID)
	}
	if _, ok := shapeNames[bt.Shape]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShape, bt.Shape)
	}

	filled := 0
	for _, t := range bt.Textures {
		if t != "" {
			filled++
		}
	}
	switch {
	case filled == 0:
		return fmt.Errorf("%w: %d %s", ErrNoTextures, bt.ID, bt.Name)
	case filled == 1 && bt.Textures[0] != "":
		bt.Layout = LayoutSingle
	default:
		bt.Layout = LayoutMultiFace
		// Faces left blank inherit the first non-empty texture.
		fallback := ""
		for _, t := range bt.Textures {
			if t != "" {
				fallback = t
				break
			}
		}
		for i := range bt.Textures {
			if bt.Textures[i] == "" {
				bt.Textures[i] = fallback
			}
		}
	}
	if bt.LightLevel < 0 {
		bt.LightLevel = 0
	}

	stored := bt
	r.resolveTextures(&stored)
	r.types[bt.ID] = &stored
	if bt.ID >= r.nextCustom {
		r.nextCustom = bt.ID + 1
	}
	return nil
}

// RegisterCustom creates a user-defined cube block and returns its id.
// One texture gives a single-texture block, six give one per face.
func (r *Registry) RegisterCustom(name string, textures ...string) (voxel.BlockID, error) {
	if len(textures) != 1 && len(textures) != 6 {
		return 0, fmt.Errorf("custom block %q: want 1 or 6 textures, got %d", name, len(textures))
	}
	bt := BlockType{
		ID:     r.nextCustom,
		Name:   name,
		Shape:  ShapeCube,
		Custom: true,
	}
	copy(bt.Textures[:], textures)
	if err := r.Register(bt); err != nil {
		return 0, err
	}
	return bt.ID, nil
}

func (r *Registry) resolveTextures(bt *BlockType) {
	for i, name := range bt.Textures {
		if name == "" {
			continue
		}
		idx, ok := r.textureIdx[name]
		if !ok {
			idx = len(r.textures)
			r.textures = append(r.textures, name)
			r.textureIdx[name] = idx
		}
		bt.textureIdx[i] = idx
	}
}

// Lookup returns the block type for id.
func (r *Registry) Lookup(id voxel.BlockID) (*BlockType, bool) {
	bt, ok := r.types[id]
	return bt, ok
}

// Resolve returns the block type for id, or the missing marker when id is unknown.
func (r *Registry) Resolve(id voxel.BlockID) *BlockType {
	if bt, ok := r.types[id]; ok {
		return bt
	}
	return r.missing
}

// Missing returns the missing-texture marker block.
func (r *Registry) Missing() *BlockType {
	return r.missing
}

// Has reports whether id is registered.
func (r *Registry) Has(id voxel.BlockID) bool {
	_, ok := r.types[id]
	return ok
}

// IDs returns all registered ids in ascending order.
func (r *Registry) IDs() []voxel.BlockID {
	ids := make([]voxel.BlockID, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Textures returns the texture names in index order.
func (r *Registry) Textures() []string {
	out := make([]string, len(r.textures))
	copy(out, r.textures)
	return out
}

// Len returns the number of registered block types.
func (r *Registry) Len() int {
	return len(r.types)
}
