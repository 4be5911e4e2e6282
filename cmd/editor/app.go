package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sqweek/dialog"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/config"
	"github.com/Faultbox/blockforge/internal/editor"
	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/engine/camera"
	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/debug"
	"github.com/Faultbox/blockforge/internal/engine/input"
	"github.com/Faultbox/blockforge/internal/engine/picking"
	"github.com/Faultbox/blockforge/internal/engine/renderer"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/engine/window"
	"github.com/Faultbox/blockforge/internal/importer"
	"github.com/Faultbox/blockforge/internal/logger"
	"github.com/Faultbox/blockforge/internal/persistence"
	"github.com/Faultbox/blockforge/internal/telemetry"
)

const fov = 70

// stroke is a mouse-held edit that becomes one undo batch.
type stroke struct {
	button uint8
	last   voxel.Pos
	moved  bool
}

// App is the interactive editor: window, renderer, input and the engine
// driven from a single frame loop.
type App struct {
	cfg      *config.Config
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	engine   *editor.Engine
	camera   *camera.FlyCamera
	shots    *debug.Screenshots
	log      *zap.Logger

	running    bool
	looking    bool
	showBounds bool
	hotbar     []voxel.BlockID
	slot       int
	rotation   uint8
	stroke     *stroke
	target     *picking.Hit
	mouseX     int
	mouseY     int
	status     string

	// picked receives archive paths from the file dialog goroutine.
	picked      chan string
	dialogOpen  bool
	unsubscribe func()
}

func newApp(cfg *config.Config, reg *blocks.Registry, bridge *persistence.Bridge, metrics *telemetry.Metrics) (*App, error) {
	a := &App{
		cfg:     cfg,
		running: false,
		camera:  camera.NewFlyCamera(mgl32.Vec3{0, 24, 32}),
		shots:   debug.NewScreenshots("screenshots", "blockforge"),
		log:     logger.Named("app"),
		picked:  make(chan string, 1),
	}
	for _, id := range reg.IDs() {
		if id != blocks.MissingID && len(a.hotbar) < 9 {
			a.hotbar = append(a.hotbar, id)
		}
	}

	var err error
	a.window, err = window.New(window.Config{
		Title:      "Blockforge",
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
		Samples:    cfg.Graphics.MSAA,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Renderer after the window, the GL context must exist
	w, h := a.window.GetSize()
	a.renderer, err = renderer.New(renderer.Config{Width: w, Height: h, VSync: cfg.Graphics.VSync}, reg)
	if err != nil {
		a.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	a.engine = editor.New(editor.Options{
		Config:   cfg,
		Registry: reg,
		Bridge:   bridge,
		Uploader: a.renderer.Chunks,
		Metrics:  metrics,
	})
	if err := a.renderer.AttachPool(a.engine.Pool()); err != nil {
		a.Close()
		return nil, fmt.Errorf("instance renderer: %w", err)
	}
	a.unsubscribe = a.engine.Subscribe(a.onEvent)
	a.input = input.New()

	if id := cfg.Persistence.Project; id != "" {
		if err := a.engine.LoadProject(id); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		p, err := a.engine.CreateProject(context.Background(), "untitled")
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create project: %w", err)
		}
		a.log.Info("new project", zap.String("id", p.ID))
		a.seedFloor()
	}
	return a, nil
}

// seedFloor gives a new project something to stand on.
func (a *App) seedFloor() {
	if err := a.engine.BeginEdit(); err != nil {
		return
	}
	for x := -16; x < 16; x++ {
		for z := -16; z < 16; z++ {
			_ = a.engine.Place(voxel.Pos{X: x, Y: 0, Z: z}, voxel.Of(blocks.Grass))
		}
	}
	_, _ = a.engine.EndEdit()
}

// Run starts the main loop.
func (a *App) Run() error {
	a.running = true
	last := time.Now()
	titleAt := last

	a.log.Info("starting editor loop")
	for a.running {
		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now

		if a.input.Update() {
			break
		}
		for _, ev := range a.input.Events() {
			a.handle(ev)
		}
		select {
		case path := <-a.picked:
			a.dialogOpen = false
			if path != "" {
				a.startImport(path)
			}
		default:
		}

		a.move(dt)
		a.pick()
		a.engine.Update(now, a.camera.Pos)
		a.render()
		a.window.SwapBuffers()

		if now.Sub(titleAt) >= time.Second {
			a.window.SetTitle(a.title())
			titleAt = now
		}
		a.limitFPS(now)
	}
	return nil
}

func (a *App) limitFPS(frameStart time.Time) {
	if a.cfg.Graphics.VSync || a.cfg.Graphics.FPSLimit <= 0 {
		return
	}
	budget := time.Second / time.Duration(a.cfg.Graphics.FPSLimit)
	if spent := time.Since(frameStart); spent < budget {
		time.Sleep(budget - spent)
	}
}

func (a *App) title() string {
	t := a.engine.Telemetry()
	s := fmt.Sprintf("Blockforge | %.0f fps | %d blocks | %d/%d chunks | %s",
		t.FPS, t.TotalBlocks, t.MeshedChunks, t.ResidentChunks, a.blockName())
	if a.cfg.Telemetry.ShowOverlay {
		s += fmt.Sprintf(" | frame %s max %s | rss %s | %d entities",
			t.FrameTime.Round(10*time.Microsecond), t.MaxFrameTime.Round(10*time.Microsecond),
			humanize.Bytes(t.RSS), t.Entities)
		if n := a.engine.FlushFailures(); n > 0 {
			s += fmt.Sprintf(" | %d failed saves", n)
		}
	}
	if a.engine.Busy() {
		s += " | busy"
	}
	if a.status != "" {
		s += " | " + a.status
	}
	return s
}

func (a *App) blockName() string {
	if len(a.hotbar) == 0 {
		return "-"
	}
	bt := a.engine.Registry().Resolve(a.hotbar[a.slot])
	return fmt.Sprintf("%s r%d", bt.Name, a.rotation)
}

func (a *App) onEvent(ev editor.Event) {
	switch ev.Kind {
	case editor.EventImportProgress:
		a.status = ev.Text
	case editor.EventImportFinished, editor.EventProjectLoaded, editor.EventFlushed:
		a.status = ev.Kind.String()
	case editor.EventImportFailed, editor.EventProjectLoadFailed, editor.EventFlushFailed, editor.EventEditFailed:
		a.status = fmt.Sprintf("%s: %v", ev.Kind, ev.Err)
		a.log.Warn(ev.Kind.String(), zap.Error(ev.Err))
	case editor.EventSettingsChanged:
		a.log.Debug("settings", zap.Any("settings", ev.Settings))
	}
}

func (a *App) handle(ev input.Event) {
	switch ev.Type {
	case input.EventWindowResize:
		w, h := a.window.GetSize()
		a.renderer.Resize(w, h)
	case input.EventKeyDown:
		if !ev.Repeat {
			a.key(ev)
		}
	case input.EventMouseMove:
		a.mouseX, a.mouseY = ev.MouseX, ev.MouseY
		if a.looking {
			a.camera.HandleLook(float32(ev.DeltaX), float32(ev.DeltaY))
		}
	case input.EventMouseDown:
		a.beginStroke(ev.Button)
	case input.EventMouseUp:
		if a.stroke != nil && a.stroke.button == ev.Button {
			a.endStroke()
		}
	case input.EventMouseWheel:
		a.camera.Speed = mgl32.Clamp(a.camera.Speed*float32(math.Pow(1.2, float64(ev.Wheel))), 1, 256)
	case input.EventFileDrop:
		a.startImport(ev.Path)
	}
}

func (a *App) key(ev input.Event) {
	ctrl := input.Ctrl(ev.Mod)
	shift := ev.Mod&uint16(sdl.KMOD_SHIFT) != 0

	switch ev.Key {
	case sdl.SCANCODE_ESCAPE:
		if a.looking {
			a.setLooking(false)
		} else {
			a.running = false
		}
	case sdl.SCANCODE_TAB:
		a.setLooking(!a.looking)
	case sdl.SCANCODE_Z:
		if ctrl && shift {
			a.report("redo", a.engine.Redo())
		} else if ctrl {
			a.report("undo", a.engine.Undo())
		}
	case sdl.SCANCODE_Y:
		if ctrl {
			a.report("redo", a.engine.Redo())
		}
	case sdl.SCANCODE_S:
		if ctrl {
			a.report("save", a.engine.Flush())
		}
	case sdl.SCANCODE_O:
		if ctrl {
			a.openImportDialog()
		} else {
			a.engine.ToggleOcclusionCulling(!a.engine.OcclusionCullingEnabled())
		}
	case sdl.SCANCODE_R:
		a.rotation = (a.rotation + 1) % 4
	case sdl.SCANCODE_G:
		a.engine.ToggleGreedyMeshing(!a.engine.GreedyMeshingEnabled())
	case sdl.SCANCODE_I:
		a.engine.ToggleInstancing(!a.engine.InstancingEnabled())
	case sdl.SCANCODE_LEFTBRACKET:
		a.engine.SetOcclusionThreshold(a.engine.OcclusionThreshold() - 0.05)
	case sdl.SCANCODE_RIGHTBRACKET:
		a.engine.SetOcclusionThreshold(a.engine.OcclusionThreshold() + 0.05)
	case sdl.SCANCODE_MINUS:
		a.engine.SetViewDistance(a.engine.ViewDistance() - 16)
	case sdl.SCANCODE_EQUALS:
		a.engine.SetViewDistance(a.engine.ViewDistance() + 16)
	case sdl.SCANCODE_F3:
		a.showBounds = !a.showBounds
	case sdl.SCANCODE_F5:
		a.report("reload", a.engine.RefreshTerrainFromDB())
	case sdl.SCANCODE_F9:
		switch {
		case logger.Level() != "debug":
			logger.SetLevel("debug")
		case a.cfg.Logging.Level != "debug":
			logger.SetLevel(a.cfg.Logging.Level)
		default:
			logger.SetLevel("info")
		}
		a.status = "log level " + logger.Level()
	case sdl.SCANCODE_F11:
		if err := a.window.SetFullscreen(!a.window.Fullscreen()); err != nil {
			a.report("fullscreen", err)
		}
	case sdl.SCANCODE_F12:
		a.screenshot()
	default:
		if ev.Key >= sdl.SCANCODE_1 && ev.Key <= sdl.SCANCODE_9 {
			if i := int(ev.Key - sdl.SCANCODE_1); i < len(a.hotbar) {
				a.slot = i
			}
		}
	}
}

func (a *App) setLooking(on bool) {
	a.looking = on
	input.SetRelativeMouse(on)
}

func (a *App) report(op string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, editor.ErrBusy):
		a.status = op + ": busy"
	default:
		a.status = fmt.Sprintf("%s: %v", op, err)
		a.log.Debug(op+" failed", zap.Error(err))
	}
}

func (a *App) move(dt float32) {
	var fwd, right, up float32
	if a.input.IsKeyDown(sdl.SCANCODE_W) {
		fwd++
	}
	if a.input.IsKeyDown(sdl.SCANCODE_S) && !a.input.IsKeyDown(sdl.SCANCODE_LCTRL) {
		fwd--
	}
	if a.input.IsKeyDown(sdl.SCANCODE_D) {
		right++
	}
	if a.input.IsKeyDown(sdl.SCANCODE_A) {
		right--
	}
	if a.input.IsKeyDown(sdl.SCANCODE_SPACE) {
		up++
	}
	if a.input.IsKeyDown(sdl.SCANCODE_C) {
		up--
	}
	if fwd != 0 || right != 0 || up != 0 {
		a.camera.HandleMovement(fwd, right, up, dt, a.input.IsKeyDown(sdl.SCANCODE_LSHIFT))
	}
}

func (a *App) viewProj() mgl32.Mat4 {
	w, h := a.renderer.Size()
	far := float32(a.engine.ViewDistance() + 2*chunk.Size)
	return camera.Projection(fov, w, h, 0.1, far).Mul4(a.camera.ViewMatrix())
}

// pick updates the targeted block. Mouse look aims through the screen
// centre, otherwise through the cursor.
func (a *App) pick() {
	a.target = nil
	dir := a.camera.Forward()
	if !a.looking {
		pw, ph := a.window.PointSize()
		r := picking.ScreenToRay(float32(a.mouseX), float32(a.mouseY), float32(pw), float32(ph), a.viewProj().Inv())
		dir = r.Direction
	}
	if hit, ok := a.engine.Pick(a.camera.Pos, dir); ok {
		a.target = &hit
	}
	if a.stroke != nil {
		a.continueStroke()
	}
}

func (a *App) beginStroke(button uint8) {
	if a.stroke != nil || (button != sdl.BUTTON_LEFT && button != sdl.BUTTON_RIGHT) {
		return
	}
	if err := a.engine.BeginEdit(); err != nil {
		a.report("edit", err)
		return
	}
	a.stroke = &stroke{button: button}
	a.continueStroke()
}

// continueStroke applies the stroke to the current target once per cell.
func (a *App) continueStroke() {
	if a.target == nil {
		return
	}
	p := a.target.Pos
	if a.stroke.button == sdl.BUTTON_RIGHT {
		p = a.target.Adjacent()
	}
	if a.stroke.moved && p == a.stroke.last {
		return
	}

	var err error
	if a.stroke.button == sdl.BUTTON_LEFT {
		err = a.engine.Remove(p)
	} else if len(a.hotbar) > 0 {
		err = a.engine.Place(p, voxel.Voxel{Block: a.hotbar[a.slot], Rotation: a.rotation})
	}
	a.stroke.last, a.stroke.moved = p, true

	var (
		oob *chunk.OutOfBoundsError
		nr  *chunk.NotResidentError
	)
	switch {
	case errors.As(err, &oob):
		a.status = "outside the world limits"
		return
	case errors.As(err, &nr):
		a.status = "beyond the view distance"
		return
	}
	a.report("edit", err)
}

func (a *App) endStroke() {
	a.stroke = nil
	if _, err := a.engine.EndEdit(); err != nil {
		a.report("edit", err)
	}
}

func (a *App) startImport(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		a.report("import", err)
		return
	}
	rules := importer.DefaultRules()
	if f := a.cfg.Import.RulesFile; f != "" {
		if rules, err = loadRules(f); err != nil {
			a.report("import", err)
			return
		}
	}
	req := importer.Request{
		File:     filepath.Base(path),
		Archive:  data,
		Rules:    rules.Rules,
		Fallback: rules.Fallback,
	}
	if err := a.engine.StartImport(req); err != nil {
		a.report("import", err)
		return
	}
	a.log.Info("import started", zap.String("file", path))
}

// openImportDialog shows a native file dialog without blocking the frame
// loop. The choice arrives on a.picked, an empty path when cancelled.
func (a *App) openImportDialog() {
	if a.dialogOpen {
		return
	}
	a.dialogOpen = true
	go func() {
		filename, err := dialog.File().
			Filter("Minecraft worlds", "zip", "mca").
			Filter("All Files", "*").
			Title("Import Minecraft World").
			Load()
		if err != nil && !errors.Is(err, dialog.ErrCancelled) {
			a.log.Warn("file dialog", zap.Error(err))
		}
		a.picked <- filename
	}()
}

func loadRules(path string) (importer.RulesFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return importer.RulesFile{}, err
	}
	defer f.Close()
	return importer.LoadRules(f)
}

func (a *App) render() {
	frame := renderer.Frame{
		ViewProj:    a.viewProj(),
		Visible:     a.engine.Scheduler().Visible(),
		ChunkBounds: a.showBounds,
	}
	if a.target != nil {
		p := a.target.Pos
		frame.Selection = &p
	}
	a.renderer.Draw(frame)
}

func (a *App) screenshot() {
	pixels, w, h := a.renderer.ReadPixels()
	name, err := a.shots.Capture(pixels, w, h)
	if err != nil {
		a.report("screenshot", err)
		return
	}
	a.status = "saved " + name
	a.log.Info("screenshot saved", zap.String("file", name))
}

// Close flushes the project and releases everything in reverse order.
func (a *App) Close() {
	a.log.Info("closing editor")
	if a.engine != nil {
		if a.stroke != nil {
			a.endStroke()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.engine.Close(ctx); err != nil {
			a.log.Error("final save failed", zap.Error(err))
		}
		cancel()
		a.engine = nil
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	if a.renderer != nil {
		a.renderer.Close()
		a.renderer = nil
	}
	if a.window != nil {
		a.window.Close()
		a.window = nil
	}
}
