// Package window handles SDL2 window and OpenGL context creation.
package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/logger"
)

func init() {
	// OpenGL calls must be made from the main thread
	runtime.LockOSThread()
}

// Smallest window that still fits the hotbar and status line.
const (
	MinWidth  = 640
	MinHeight = 360
)

// Config holds window configuration.
type Config struct {
	Title      string
	Width      int
	Height     int
	Fullscreen bool
	VSync      bool
	Samples    int // MSAA samples, 0 disables
}

// Window wraps SDL2 window and OpenGL context.
type Window struct {
	config     Config
	sdlWindow  *sdl.Window
	glContext  sdl.GLContext
	samples    int
	fullscreen bool
	log        *zap.Logger
}

// New creates a window with an OpenGL 4.1 core context. When the driver
// rejects the requested multisampling, the window is created without it.
func New(cfg Config) (*Window, error) {
	w := &Window{
		config:     cfg,
		fullscreen: cfg.Fullscreen,
		log:        logger.Named("window"),
	}

	w.log.Info("initializing SDL2")
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("SDL_Init failed: %w", err)
	}

	var errs []error
	for _, samples := range sampleAttempts(cfg.Samples) {
		err := w.create(samples)
		if err == nil {
			w.samples = samples
			break
		}
		w.log.Warn("window creation failed", zap.Int("samples", samples), zap.Error(err))
		errs = append(errs, err)
	}
	if w.sdlWindow == nil {
		sdl.Quit()
		return nil, errors.Join(errs...)
	}
	w.sdlWindow.SetMinimumSize(MinWidth, MinHeight)

	interval := setSwapInterval(cfg.VSync)

	w.log.Info("window created",
		zap.String("title", cfg.Title),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Bool("fullscreen", cfg.Fullscreen),
		zap.Int("samples", w.samples),
		zap.Int("swap_interval", interval),
	)
	return w, nil
}

// create makes the window and context for one MSAA setting.
func (w *Window) create(samples int) error {
	sdl.GLSetAttribute(sdl.GL_CONTEXT_MAJOR_VERSION, 4)
	sdl.GLSetAttribute(sdl.GL_CONTEXT_MINOR_VERSION, 1)
	sdl.GLSetAttribute(sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_CORE)
	sdl.GLSetAttribute(sdl.GL_DOUBLEBUFFER, 1)
	sdl.GLSetAttribute(sdl.GL_DEPTH_SIZE, 24)
	if samples > 0 {
		sdl.GLSetAttribute(sdl.GL_MULTISAMPLEBUFFERS, 1)
		sdl.GLSetAttribute(sdl.GL_MULTISAMPLESAMPLES, samples)
	} else {
		sdl.GLSetAttribute(sdl.GL_MULTISAMPLEBUFFERS, 0)
		sdl.GLSetAttribute(sdl.GL_MULTISAMPLESAMPLES, 0)
	}

	win, err := sdl.CreateWindow(
		w.config.Title,
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		int32(max(w.config.Width, MinWidth)),
		int32(max(w.config.Height, MinHeight)),
		createFlags(w.config),
	)
	if err != nil {
		return fmt.Errorf("SDL_CreateWindow failed: %w", err)
	}
	ctx, err := win.GLCreateContext()
	if err != nil {
		win.Destroy()
		return fmt.Errorf("SDL_GL_CreateContext failed: %w", err)
	}
	w.sdlWindow, w.glContext = win, ctx
	return nil
}

func createFlags(cfg Config) uint32 {
	flags := uint32(sdl.WINDOW_OPENGL | sdl.WINDOW_RESIZABLE | sdl.WINDOW_ALLOW_HIGHDPI)
	if cfg.Fullscreen {
		flags |= sdl.WINDOW_FULLSCREEN_DESKTOP
	}
	return flags
}

// sampleAttempts lists the MSAA settings to try, best first.
func sampleAttempts(samples int) []int {
	if samples <= 0 {
		return []int{0}
	}
	return []int{samples, 0}
}

// setSwapInterval prefers adaptive vsync, which tears instead of halving the
// frame rate when a frame misses the refresh.
func setSwapInterval(vsync bool) int {
	if !vsync {
		sdl.GLSetSwapInterval(0)
		return 0
	}
	if sdl.GLSetSwapInterval(-1) == nil {
		return -1
	}
	if err := sdl.GLSetSwapInterval(1); err != nil {
		logger.Named("window").Warn("failed to enable VSync", zap.Error(err))
		return 0
	}
	return 1
}

// Close destroys the window and cleans up SDL2.
func (w *Window) Close() {
	w.log.Info("closing window")

	if w.glContext != nil {
		sdl.GLDeleteContext(w.glContext)
	}
	if w.sdlWindow != nil {
		w.sdlWindow.Destroy()
	}

	sdl.Quit()
}

// SwapBuffers swaps the OpenGL buffers.
func (w *Window) SwapBuffers() {
	w.sdlWindow.GLSwap()
}

// GetSize returns the drawable size in pixels, which differs from the
// window size on high-DPI displays.
func (w *Window) GetSize() (int, int) {
	width, height := w.sdlWindow.GLGetDrawableSize()
	return int(width), int(height)
}

// PointSize returns the window size in screen points, the unit of mouse
// coordinates.
func (w *Window) PointSize() (int, int) {
	width, height := w.sdlWindow.GetSize()
	return int(width), int(height)
}

// SetTitle sets the window title.
func (w *Window) SetTitle(title string) {
	w.sdlWindow.SetTitle(title)
}

// Samples reports the MSAA sample count the context was created with.
func (w *Window) Samples() int { return w.samples }

// Fullscreen reports whether the window covers the desktop.
func (w *Window) Fullscreen() bool { return w.fullscreen }

// SetFullscreen switches between a desktop-sized borderless window and the
// normal window. The drawable size changes; callers resize their targets on
// the following resize event.
func (w *Window) SetFullscreen(on bool) error {
	if on == w.fullscreen {
		return nil
	}
	var flags uint32
	if on {
		flags = sdl.WINDOW_FULLSCREEN_DESKTOP
	}
	if err := w.sdlWindow.SetFullscreen(flags); err != nil {
		return fmt.Errorf("SDL_SetWindowFullscreen failed: %w", err)
	}
	w.fullscreen = on
	w.log.Info("fullscreen changed", zap.Bool("fullscreen", on))
	return nil
}
