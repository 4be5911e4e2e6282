// Package scene draws chunk meshes, instance batches and debug lines with
// OpenGL. Every method must run on the thread owning the GL context.
package scene

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/shader"
	"github.com/Faultbox/blockforge/internal/engine/terrain"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/logger"
)

var vertexSize = int32(unsafe.Sizeof(terrain.Vertex{}))

// Lighting is the directional light shared by all block draws.
type Lighting struct {
	Dir     mgl32.Vec3
	Ambient float32
}

// DefaultLighting is a light from above and slightly behind the default view.
var DefaultLighting = Lighting{Dir: mgl32.Vec3{0.4, 1.0, 0.3}, Ambient: 0.55}

// blockProgram is the shader shared by chunk meshes and instance batches.
type blockProgram struct {
	*shader.Program

	locViewProj  int32
	locInstanced int32
	locColor     int32
	locLightDir  int32
	locAmbient   int32
}

func newBlockProgram() (*blockProgram, error) {
	p, err := shader.Compile(blockVertexShader, blockFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("block shader: %w", err)
	}
	return &blockProgram{
		Program:      p,
		locViewProj:  p.Uniform("uViewProj"),
		locInstanced: p.Uniform("uInstanced"),
		locColor:     p.Uniform("uColor"),
		locLightDir:  p.Uniform("uLightDir"),
		locAmbient:   p.Uniform("uAmbient"),
	}, nil
}

func (p *blockProgram) begin(viewProj mgl32.Mat4, light Lighting, instanced bool) {
	p.Use()
	gl.UniformMatrix4fv(p.locViewProj, 1, false, &viewProj[0])
	gl.Uniform3f(p.locLightDir, light.Dir[0], light.Dir[1], light.Dir[2])
	gl.Uniform1f(p.locAmbient, light.Ambient)
	if instanced {
		gl.Uniform1i(p.locInstanced, 1)
	} else {
		gl.Uniform1i(p.locInstanced, 0)
	}
}

func (p *blockProgram) color(c Color) {
	gl.Uniform3f(p.locColor, c[0], c[1], c[2])
}

// meshBuffers is the GPU copy of one mesh.
type meshBuffers struct {
	vao    uint32
	vbo    uint32
	ebo    uint32
	groups []terrain.TextureGroup
}

// upload (re)fills the buffers and binds vertex attributes 0-3. The VAO is
// left bound so callers can add attributes.
func (b *meshBuffers) upload(m *terrain.Mesh) {
	if b.vao == 0 {
		gl.GenVertexArrays(1, &b.vao)
		gl.GenBuffers(1, &b.vbo)
		gl.GenBuffers(1, &b.ebo)
	}
	gl.BindVertexArray(b.vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, b.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(m.Vertices)*int(vertexSize), unsafe.Pointer(&m.Vertices[0]), gl.STATIC_DRAW)

	// Position (location 0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, vertexSize, 0)
	gl.EnableVertexAttribArray(0)
	// Normal (location 1)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, vertexSize, 3*4)
	gl.EnableVertexAttribArray(1)
	// TexCoord (location 2)
	gl.VertexAttribPointerWithOffset(2, 2, gl.FLOAT, false, vertexSize, 6*4)
	gl.EnableVertexAttribArray(2)
	// Shade (location 3)
	gl.VertexAttribPointerWithOffset(3, 1, gl.FLOAT, false, vertexSize, 8*4)
	gl.EnableVertexAttribArray(3)

	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, b.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(m.Indices)*4, unsafe.Pointer(&m.Indices[0]), gl.STATIC_DRAW)

	b.groups = append(b.groups[:0], m.Groups...)
}

func (b *meshBuffers) release() {
	if b.vao != 0 {
		gl.DeleteVertexArrays(1, &b.vao)
		b.vao = 0
	}
	if b.vbo != 0 {
		gl.DeleteBuffers(1, &b.vbo)
		b.vbo = 0
	}
	if b.ebo != 0 {
		gl.DeleteBuffers(1, &b.ebo)
		b.ebo = 0
	}
	b.groups = nil
}

// ChunkRenderer keeps one VAO per meshed chunk. It implements the
// scheduler's upload boundary.
type ChunkRenderer struct {
	prog    *blockProgram
	palette Palette
	light   Lighting
	meshes  map[voxel.ChunkCoord]*meshBuffers
	log     *zap.Logger
}

// NewChunkRenderer compiles the block shader. palette colours texture groups.
func NewChunkRenderer(palette Palette) (*ChunkRenderer, error) {
	prog, err := newBlockProgram()
	if err != nil {
		return nil, err
	}
	return &ChunkRenderer{
		prog:    prog,
		palette: palette,
		light:   DefaultLighting,
		meshes:  make(map[voxel.ChunkCoord]*meshBuffers),
		log:     logger.Named("scene"),
	}, nil
}

// SetPalette replaces the texture colours, e.g. after a catalog reload.
func (r *ChunkRenderer) SetPalette(p Palette) {
	r.palette = p
}

// UploadChunk replaces the GPU copy of a chunk mesh. An empty mesh releases
// it. Allocation failures come back as *ResourceError and leave nothing
// uploaded for the chunk.
func (r *ChunkRenderer) UploadChunk(m *terrain.Mesh) error {
	if m.Empty() {
		if m != nil {
			r.ReleaseChunk(m.Coord)
		}
		return nil
	}

	b, ok := r.meshes[m.Coord]
	if !ok {
		b = &meshBuffers{}
	}
	b.upload(m)
	gl.BindVertexArray(0)

	if err := checkGL("upload chunk", m.Coord); err != nil {
		b.release()
		delete(r.meshes, m.Coord)
		return err
	}
	r.meshes[m.Coord] = b
	return nil
}

// ReleaseChunk frees the buffers of a chunk, if any.
func (r *ChunkRenderer) ReleaseChunk(coord voxel.ChunkCoord) {
	if b, ok := r.meshes[coord]; ok {
		b.release()
		delete(r.meshes, coord)
	}
}

// Resident returns the number of chunks with GPU buffers.
func (r *ChunkRenderer) Resident() int {
	return len(r.meshes)
}

// Render draws the visible chunks.
func (r *ChunkRenderer) Render(viewProj mgl32.Mat4, visible []voxel.ChunkCoord) {
	if len(visible) == 0 {
		return
	}
	r.prog.begin(viewProj, r.light, false)
	for _, c := range visible {
		b, ok := r.meshes[c]
		if !ok {
			continue
		}
		gl.BindVertexArray(b.vao)
		for _, g := range b.groups {
			r.prog.color(r.palette.At(g.TextureID))
			gl.DrawElementsWithOffset(gl.TRIANGLES, g.IndexCount, gl.UNSIGNED_INT, uintptr(g.StartIndex*4))
		}
	}
	gl.BindVertexArray(0)
}

// Destroy releases all resources.
func (r *ChunkRenderer) Destroy() {
	for c, b := range r.meshes {
		b.release()
		delete(r.meshes, c)
	}
	if r.prog != nil {
		r.prog.Delete()
	}
	r.log.Debug("chunk renderer destroyed")
}
