package scene

import (
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/blockforge/internal/engine/shader"
)

// LineRenderer draws debug line lists such as the selection outline and
// chunk bounds.
type LineRenderer struct {
	prog        *shader.Program
	locViewProj int32
	locColor    int32

	vao       uint32
	vbo       uint32
	allocated int
}

// NewLineRenderer creates a line renderer with an empty buffer.
func NewLineRenderer() (*LineRenderer, error) {
	prog, err := shader.Compile(lineVertexShader, lineFragmentShader)
	if err != nil {
		return nil, err
	}
	r := &LineRenderer{
		prog:        prog,
		locViewProj: prog.Uniform("uViewProj"),
		locColor:    prog.Uniform("uColor"),
	}
	gl.GenVertexArrays(1, &r.vao)
	gl.BindVertexArray(r.vao)
	gl.GenBuffers(1, &r.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 3*4, 0)
	gl.EnableVertexAttribArray(0)
	gl.BindVertexArray(0)
	return r, nil
}

// Draw uploads vertices ([x, y, z] pairs) and draws them as GL_LINES.
func (r *LineRenderer) Draw(viewProj mgl32.Mat4, vertices []float32, color Color) {
	if len(vertices) < 6 {
		return
	}
	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	if len(vertices) > r.allocated {
		gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, unsafe.Pointer(&vertices[0]), gl.DYNAMIC_DRAW)
		r.allocated = len(vertices)
	} else {
		gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(vertices)*4, unsafe.Pointer(&vertices[0]))
	}

	r.prog.Use()
	gl.UniformMatrix4fv(r.locViewProj, 1, false, &viewProj[0])
	gl.Uniform3f(r.locColor, color[0], color[1], color[2])
	gl.DrawArrays(gl.LINES, 0, int32(len(vertices)/3))
	gl.BindVertexArray(0)
}

// Destroy releases all resources.
func (r *LineRenderer) Destroy() {
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
		r.vao = 0
	}
	if r.vbo != 0 {
		gl.DeleteBuffers(1, &r.vbo)
		r.vbo = 0
	}
	r.prog.Delete()
}
