package editor

import "sort"

// EventKind tells editor events apart.
type EventKind uint8

const (
	EventSettingsChanged EventKind = iota
	EventBusyChanged
	EventHistoryChanged
	EventImportProgress
	EventImportFinished
	EventImportFailed
	EventProjectLoaded
	EventProjectLoadFailed
	EventFlushed
	EventFlushFailed
	EventEditFailed
)

var eventNames = map[EventKind]string{
	EventSettingsChanged:   "settings_changed",
	EventBusyChanged:       "busy_changed",
	EventHistoryChanged:    "history_changed",
	EventImportProgress:    "import_progress",
	EventImportFinished:    "import_finished",
	EventImportFailed:      "import_failed",
	EventProjectLoaded:     "project_loaded",
	EventProjectLoadFailed: "project_load_failed",
	EventFlushed:           "flushed",
	EventFlushFailed:       "flush_failed",
	EventEditFailed:        "edit_failed",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "?"
}

// Event is a typed state snapshot published to listeners.
type Event struct {
	Kind     EventKind
	Text     string
	Err      error
	Busy     bool
	Settings Settings
}

// Listener receives events on the frame loop.
type Listener func(Event)

type observers struct {
	next      int
	listeners map[int]Listener
}

func (o *observers) subscribe(l Listener) func() {
	if o.listeners == nil {
		o.listeners = make(map[int]Listener)
	}
	id := o.next
	o.next++
	o.listeners[id] = l
	return func() { delete(o.listeners, id) }
}

// publish calls listeners in subscription order.
func (o *observers) publish(ev Event) {
	ids := make([]int, 0, len(o.listeners))
	for id := range o.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if l, ok := o.listeners[id]; ok {
			l(ev)
		}
	}
}
