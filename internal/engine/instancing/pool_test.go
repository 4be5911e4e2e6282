package instancing

import (
	"testing"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

func TestAddRemove(t *testing.T) {
	p := NewPool(blocks.NewDefaultRegistry(), true)
	a := voxel.Pos{X: 1, Y: 2, Z: 3}
	b := voxel.Pos{X: -4, Y: 2, Z: 3}

	p.Add(a, blocks.Torch, 0)
	p.Add(b, blocks.Torch, 0)
	p.Add(b, blocks.Torch, 1) // moves b into another batch

	batches := p.Batches()
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if batches[0].Key != (Key{Block: blocks.Torch}) || len(batches[0].Positions) != 1 {
		t.Errorf("unexpected first batch %+v", batches[0])
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}

	if !p.Remove(a) {
		t.Error("Remove() of tracked position returned false")
	}
	if p.Remove(a) {
		t.Error("Remove() twice returned true")
	}
	if len(p.Chunks()) != 1 {
		t.Errorf("Chunks() = %v", p.Chunks())
	}
}

func TestToggleKeepsPositions(t *testing.T) {
	reg := blocks.NewDefaultRegistry()
	s := chunk.NewStore(chunk.DefaultLimits())
	p := NewPool(reg, true)
	s.Observe(p)

	placements := map[voxel.Pos]voxel.Voxel{
		{X: 0, Y: 0, Z: 0}:   voxel.Of(blocks.Torch),
		{X: 5, Y: 1, Z: 0}:   voxel.Of(blocks.Plant),
		{X: 40, Y: 1, Z: -3}: voxel.Of(blocks.Fence),
		{X: 2, Y: 0, Z: 0}:   voxel.Of(blocks.Stone),
	}
	for pos, v := range placements {
		if _, err := s.SetVoxel(pos, v); err != nil {
			t.Fatal(err)
		}
	}
	before := s.TotalBlocks()
	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 instanced blocks", p.Len())
	}

	chunks := p.SetEnabled(false)
	if len(chunks) != 2 {
		t.Errorf("chunks to remesh = %v, want 2", chunks)
	}
	if len(p.Batches()) != 0 {
		t.Error("disabled pool should expose no batches")
	}
	if p.Len() != 3 || s.TotalBlocks() != before {
		t.Error("toggling changed tracked blocks")
	}

	p.SetEnabled(true)
	var n int
	for _, b := range p.Batches() {
		n += len(b.Positions)
	}
	if n != 3 {
		t.Errorf("re-enabled batches hold %d positions, want 3", n)
	}
}

func TestObserverTracksEdits(t *testing.T) {
	s := chunk.NewStore(chunk.DefaultLimits())
	p := NewPool(blocks.NewDefaultRegistry(), true)
	s.Observe(p)
	pos := voxel.Pos{X: 3, Y: 3, Z: 3}

	if _, err := s.SetVoxel(pos, voxel.Of(blocks.Torch)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetVoxel(pos, voxel.Of(blocks.Stone)); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 0 {
		t.Error("replacing a torch with stone should drop the instance")
	}

	dirty := p.TakeDirty()
	if len(dirty) != 1 || dirty[0].Block != blocks.Torch {
		t.Errorf("TakeDirty() = %v", dirty)
	}
	if p.TakeDirty() != nil {
		t.Error("second TakeDirty() should be empty")
	}
}

func TestBulkLoadAndEvict(t *testing.T) {
	s := chunk.NewStore(chunk.DefaultLimits())
	p := NewPool(blocks.NewDefaultRegistry(), true)
	s.Observe(p)

	err := s.BulkLoad([]chunk.Placement{
		{Pos: voxel.Pos{X: 1}, Voxel: voxel.Of(blocks.Plant)},
		{Pos: voxel.Pos{X: 2}, Voxel: voxel.Of(blocks.Plant)},
		{Pos: voxel.Pos{X: 3}, Voxel: voxel.Of(blocks.Dirt)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len() after bulk load = %d, want 2", p.Len())
	}

	c, _ := s.Chunk(voxel.ChunkCoord{})
	s.MarkFlushed(c.Coord, c.Version())
	s.Evict(c.Coord)
	if p.Len() != 0 {
		t.Errorf("Len() after evict = %d", p.Len())
	}
}
