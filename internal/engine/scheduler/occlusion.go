package scheduler

import (
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// occluded reports whether every face of c is covered by its neighbour. A
// face counts as covered when the fraction of the neighbour's touching
// boundary layer that is opaque toward c reaches the threshold. Missing
// neighbours never cover. Diagonal neighbours are ignored.
func (s *Scheduler) occluded(c voxel.ChunkCoord) bool {
	nb := s.store.Neighbors(c)
	for i, f := range voxel.Faces {
		n := nb[i]
		if n == nil {
			return false
		}
		if s.coverage(n, f) < s.cfg.OcclusionThreshold {
			return false
		}
	}
	return true
}

// coverage measures how much of neighbour n, lying across face f, hides the
// shared boundary. The touching layer of n and the face it shows toward the
// centre chunk are both derived from f.
func (s *Scheduler) coverage(n *chunk.Chunk, f voxel.Face) float32 {
	a := f.Axis()
	u, v := (a+1)%3, (a+2)%3
	layer := 0
	if !f.Positive() {
		layer = chunk.Size - 1
	}
	toward := f.Opposite()

	covered := 0
	for j := 0; j < chunk.Size; j++ {
		for i := 0; i < chunk.Size; i++ {
			var p [3]int
			p[a], p[u], p[v] = layer, i, j
			vx := n.Voxel(p[0], p[1], p[2])
			if vx.IsEmpty() {
				continue
			}
			if s.reg.Resolve(vx.Block).FullFace(toward, vx) {
				covered++
			}
		}
	}
	return float32(covered) / float32(chunk.Size*chunk.Size)
}
