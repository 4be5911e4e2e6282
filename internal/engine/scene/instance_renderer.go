package scene

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/instancing"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/logger"
)

type instanceBatch struct {
	mesh      meshBuffers
	offsets   uint32
	count     int32
	allocated int
}

// InstanceRenderer draws one instanced call per (block, rotation) batch of
// an instancing.Pool.
type InstanceRenderer struct {
	prog    *blockProgram
	reg     *blocks.Registry
	pool    *instancing.Pool
	palette Palette
	light   Lighting
	batches map[instancing.Key]*instanceBatch
	retry   map[instancing.Key]struct{}
	log     *zap.Logger
}

// NewInstanceRenderer creates a renderer for the pool's batches.
func NewInstanceRenderer(reg *blocks.Registry, pool *instancing.Pool, palette Palette) (*InstanceRenderer, error) {
	prog, err := newBlockProgram()
	if err != nil {
		return nil, err
	}
	return &InstanceRenderer{
		prog:    prog,
		reg:     reg,
		pool:    pool,
		palette: palette,
		light:   DefaultLighting,
		batches: make(map[instancing.Key]*instanceBatch),
		retry:   make(map[instancing.Key]struct{}),
		log:     logger.Named("scene"),
	}, nil
}

// Sync uploads the batches that changed since the last call. A failed
// allocation is attempted again on the next call.
func (r *InstanceRenderer) Sync() error {
	keys := r.pool.TakeDirty()
	for k := range r.retry {
		keys = append(keys, k)
	}
	clear(r.retry)

	var failed error
	for _, k := range keys {
		b := r.pool.Batch(k)
		if len(b.Positions) == 0 {
			r.release(k)
			continue
		}
		if err := r.upload(k, b.Positions); err != nil {
			r.log.Warn("instance upload failed",
				zap.Uint16("block", uint16(k.Block)),
				zap.Uint8("rotation", k.Rotation),
				zap.Error(err))
			r.release(k)
			var re *ResourceError
			if errors.As(err, &re) {
				r.retry[k] = struct{}{}
			}
			if failed == nil {
				failed = err
			}
		}
	}
	return failed
}

func (r *InstanceRenderer) upload(k instancing.Key, positions []voxel.Pos) error {
	ib, ok := r.batches[k]
	if !ok {
		tmpl := TemplateMesh(r.reg, k)
		if tmpl.Empty() {
			return fmt.Errorf("block %d has no geometry", k.Block)
		}
		ib = &instanceBatch{}
		ib.mesh.upload(tmpl)
		gl.GenBuffers(1, &ib.offsets)
		gl.BindBuffer(gl.ARRAY_BUFFER, ib.offsets)
		gl.VertexAttribPointerWithOffset(4, 3, gl.FLOAT, false, 3*4, 0)
		gl.EnableVertexAttribArray(4)
		gl.VertexAttribDivisor(4, 1)
		gl.BindVertexArray(0)
		r.batches[k] = ib
	}

	data := make([]float32, 0, len(positions)*3)
	for _, p := range positions {
		data = append(data, float32(p.X), float32(p.Y), float32(p.Z))
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, ib.offsets)
	if len(positions) > ib.allocated {
		gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, unsafe.Pointer(&data[0]), gl.DYNAMIC_DRAW)
		ib.allocated = len(positions)
	} else {
		gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(data)*4, unsafe.Pointer(&data[0]))
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	ib.count = int32(len(positions))

	if err := checkGL(fmt.Sprintf("upload instances %d/%d", k.Block, k.Rotation), positions[0].Chunk()); err != nil {
		return err
	}
	return nil
}

func (r *InstanceRenderer) release(k instancing.Key) {
	ib, ok := r.batches[k]
	if !ok {
		return
	}
	ib.mesh.release()
	if ib.offsets != 0 {
		gl.DeleteBuffers(1, &ib.offsets)
	}
	delete(r.batches, k)
}

// Batches returns the number of uploaded batches.
func (r *InstanceRenderer) Batches() int {
	return len(r.batches)
}

// Render draws every batch. Nothing is drawn while instancing is disabled;
// the chunk meshes carry those blocks instead.
func (r *InstanceRenderer) Render(viewProj mgl32.Mat4) {
	if !r.pool.Enabled() || len(r.batches) == 0 {
		return
	}
	r.prog.begin(viewProj, r.light, true)
	for _, ib := range r.batches {
		gl.BindVertexArray(ib.mesh.vao)
		for _, g := range ib.mesh.groups {
			r.prog.color(r.palette.At(g.TextureID))
			gl.DrawElementsInstanced(gl.TRIANGLES, g.IndexCount, gl.UNSIGNED_INT, gl.PtrOffset(int(g.StartIndex)*4), ib.count)
		}
	}
	gl.BindVertexArray(0)
}

// Destroy releases all resources.
func (r *InstanceRenderer) Destroy() {
	for k := range r.batches {
		r.release(k)
	}
	if r.prog != nil {
		r.prog.Delete()
	}
}
