// Package renderer owns the OpenGL frame: state setup, the scene renderers
// and read-back for screenshots.
package renderer

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/debug"
	"github.com/Faultbox/blockforge/internal/engine/instancing"
	"github.com/Faultbox/blockforge/internal/engine/scene"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/logger"
)

// Config holds renderer configuration.
type Config struct {
	Width  int
	Height int
	VSync  bool
}

// Frame is everything drawn in one frame.
type Frame struct {
	ViewProj mgl32.Mat4
	Visible  []voxel.ChunkCoord

	// Selection outlines the targeted block when set.
	Selection *voxel.Pos
	// ChunkBounds draws the outline of every visible chunk.
	ChunkBounds bool
}

var (
	selectionColor = scene.Color{0.05, 0.05, 0.05}
	boundsColor    = scene.Color{0.9, 0.8, 0.2}
)

// Renderer handles all OpenGL rendering.
type Renderer struct {
	config Config

	Chunks    *scene.ChunkRenderer
	Instances *scene.InstanceRenderer
	lines     *scene.LineRenderer

	reg     *blocks.Registry
	palette scene.Palette
}

// New creates a new renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
// Instance batches are drawn once a pool is attached with AttachPool.
func New(cfg Config, reg *blocks.Registry) (*Renderer, error) {
	r := &Renderer{
		config:  cfg,
		palette: scene.NewPalette(reg),
		reg:     reg,
	}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	logger.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.ClearColor(0.53, 0.72, 0.88, 1.0)
	gl.Viewport(0, 0, int32(cfg.Width), int32(cfg.Height))

	var err error
	if r.Chunks, err = scene.NewChunkRenderer(r.palette); err != nil {
		return nil, err
	}
	if r.lines, err = scene.NewLineRenderer(); err != nil {
		r.Chunks.Destroy()
		return nil, fmt.Errorf("line shader: %w", err)
	}
	return r, nil
}

// AttachPool creates the instance renderer for pool.
func (r *Renderer) AttachPool(pool *instancing.Pool) error {
	ir, err := scene.NewInstanceRenderer(r.reg, pool, r.palette)
	if err != nil {
		return err
	}
	if r.Instances != nil {
		r.Instances.Destroy()
	}
	r.Instances = ir
	return nil
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	logger.Info("closing renderer")
	r.Chunks.Destroy()
	if r.Instances != nil {
		r.Instances.Destroy()
	}
	r.lines.Destroy()
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	logger.Debug("renderer resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// Size returns the viewport size.
func (r *Renderer) Size() (int, int) {
	return r.config.Width, r.config.Height
}

// Draw clears the screen and draws one frame.
func (r *Renderer) Draw(f Frame) {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	r.Chunks.Render(f.ViewProj, f.Visible)
	if r.Instances != nil {
		if err := r.Instances.Sync(); err != nil {
			logger.Debug("instance sync incomplete", zap.Error(err))
		}
		r.Instances.Render(f.ViewProj)
	}

	if f.ChunkBounds {
		r.lines.Draw(f.ViewProj, debug.ChunkWireframes(f.Visible), boundsColor)
	}
	if f.Selection != nil {
		r.lines.Draw(f.ViewProj, debug.BlockWireframe(*f.Selection), selectionColor)
	}
}

// ReadPixels reads the back buffer as bottom-up RGBA.
func (r *Renderer) ReadPixels() ([]byte, int, int) {
	w, h := r.config.Width, r.config.Height
	pixels := make([]byte, w*h*4)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	return pixels, w, h
}
