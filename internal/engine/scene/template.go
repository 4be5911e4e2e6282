package scene

import (
	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/instancing"
	"github.com/Faultbox/blockforge/internal/engine/terrain"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// TemplateMesh builds the geometry of a single block at the origin. Instance
// batches draw it once per position, offset by the instance attribute.
func TemplateMesh(reg *blocks.Registry, key instancing.Key) *terrain.Mesh {
	store := chunk.NewStore(chunk.Limits{
		Min: voxel.Pos{X: -1, Y: -1, Z: -1},
		Max: voxel.Pos{X: 1, Y: 1, Z: 1},
	})
	if _, err := store.SetVoxel(voxel.Pos{}, voxel.Voxel{Block: key.Block, Rotation: key.Rotation % 4}); err != nil {
		return &terrain.Mesh{}
	}
	c, ok := store.Chunk(voxel.ChunkCoord{})
	if !ok {
		return &terrain.Mesh{}
	}
	b := terrain.NewBuilder(reg, terrain.Options{})
	return b.Build(c, store.Neighbors(voxel.ChunkCoord{}))
}
