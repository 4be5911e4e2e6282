// Package input handles SDL2 input events.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// EventType identifies a translated input event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
	EventKeyUp
	EventMouseMove
	EventMouseDown
	EventMouseUp
	EventMouseWheel
	EventFileDrop
)

// Event represents a processed input event.
type Event struct {
	Type   EventType
	Key    sdl.Scancode
	Mod    uint16
	Repeat bool
	Width  int
	Height int
	MouseX int
	MouseY int
	// Relative motion, valid for EventMouseMove. Filled in relative mouse mode too.
	DeltaX int
	DeltaY int
	Button uint8
	Wheel  int
	Path   string // dropped file, valid for EventFileDrop
}

// Input handles all input processing.
type Input struct {
	events []Event
	held   map[sdl.Scancode]bool
}

// New creates a new input handler.
func New() *Input {
	return &Input{
		events: make([]Event, 0, 16),
		held:   make(map[sdl.Scancode]bool),
	}
}

// Update polls SDL events and converts them to editor events.
// Returns true if the editor should quit.
func (i *Input) Update() bool {
	i.events = i.events[:0]

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		e, ok := translate(event)
		if !ok {
			continue
		}
		i.record(e)
		if e.Type == EventQuit {
			return true
		}
	}
	return false
}

func (i *Input) record(e Event) {
	switch e.Type {
	case EventKeyDown:
		i.held[e.Key] = true
	case EventKeyUp:
		delete(i.held, e.Key)
	}
	i.events = append(i.events, e)
}

func translate(event sdl.Event) (Event, bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return Event{Type: EventQuit}, true

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_RESIZED || e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
			return Event{Type: EventWindowResize, Width: int(e.Data1), Height: int(e.Data2)}, true
		}

	case *sdl.KeyboardEvent:
		ev := Event{Key: e.Keysym.Scancode, Mod: e.Keysym.Mod, Repeat: e.Repeat != 0}
		switch e.Type {
		case sdl.KEYDOWN:
			ev.Type = EventKeyDown
			return ev, true
		case sdl.KEYUP:
			ev.Type = EventKeyUp
			return ev, true
		}

	case *sdl.MouseMotionEvent:
		return Event{
			Type:   EventMouseMove,
			MouseX: int(e.X),
			MouseY: int(e.Y),
			DeltaX: int(e.XRel),
			DeltaY: int(e.YRel),
		}, true

	case *sdl.MouseButtonEvent:
		ev := Event{MouseX: int(e.X), MouseY: int(e.Y), Button: e.Button}
		switch e.Type {
		case sdl.MOUSEBUTTONDOWN:
			ev.Type = EventMouseDown
			return ev, true
		case sdl.MOUSEBUTTONUP:
			ev.Type = EventMouseUp
			return ev, true
		}

	case *sdl.MouseWheelEvent:
		return Event{Type: EventMouseWheel, Wheel: int(e.Y)}, true

	case *sdl.DropEvent:
		if e.Type == sdl.DROPFILE {
			return Event{Type: EventFileDrop, Path: e.File}, true
		}
	}
	return Event{}, false
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}

// IsKeyPressed checks if a specific key was pressed this frame.
func (i *Input) IsKeyPressed(scancode sdl.Scancode) bool {
	for _, e := range i.events {
		if e.Type == EventKeyDown && !e.Repeat && e.Key == scancode {
			return true
		}
	}
	return false
}

// IsKeyDown reports whether a key is currently held.
func (i *Input) IsKeyDown(scancode sdl.Scancode) bool {
	return i.held[scancode]
}

// Ctrl reports whether Ctrl (or Cmd on macOS) is held.
func Ctrl(mod uint16) bool {
	return mod&uint16(sdl.KMOD_CTRL|sdl.KMOD_GUI) != 0
}

// SetRelativeMouse captures the cursor for mouse look.
func SetRelativeMouse(on bool) {
	sdl.SetRelativeMouseMode(on)
}
