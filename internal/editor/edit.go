package editor

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/blockforge/internal/engine/history"
	"github.com/Faultbox/blockforge/internal/engine/picking"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// BeginEdit opens an edit session, e.g. on mouse-down.
func (e *Engine) BeginEdit() error {
	if e.Busy() {
		return ErrBusy
	}
	return e.history.BeginBatch()
}

// Place writes a voxel inside the open edit session. Without a session the
// write becomes a batch of its own. Writes into chunks that are stored but
// not loaded fail with *chunk.NotResidentError.
func (e *Engine) Place(p voxel.Pos, v voxel.Voxel) error {
	if e.Busy() {
		return ErrBusy
	}
	v.Rotation %= 4
	if !e.history.Open() {
		if err := e.history.BeginBatch(); err != nil {
			return err
		}
		defer e.EndEdit()
	}
	prev, err := e.store.SetVoxel(p, v)
	if err != nil {
		return err
	}
	return e.history.RecordVoxelChange(p, prev, v)
}

// Remove clears a voxel inside the open edit session.
func (e *Engine) Remove(p voxel.Pos) error {
	return e.Place(p, voxel.Voxel{})
}

// EndEdit seals the session. It reports whether an undoable batch was recorded.
func (e *Engine) EndEdit() (bool, error) {
	pushed, err := e.history.EndBatch()
	if pushed {
		e.publish(Event{Kind: EventHistoryChanged})
	}
	return pushed, err
}

// Undo reverts the newest edit session. When the session touched chunks that
// were unloaded since, they are read back from storage first and the undo
// runs on a later Update; the engine is busy until then.
func (e *Engine) Undo() error {
	if e.Busy() {
		return ErrBusy
	}
	if b := e.history.NextUndo(); b != nil && e.whenResident("undo", b.Chunks(), e.undo) {
		return nil
	}
	return e.undo()
}

func (e *Engine) undo() error {
	_, err := e.history.Undo(e.store)
	if !errors.Is(err, history.ErrNothingToUndo) && !errors.Is(err, history.ErrBatchOpen) {
		e.publish(Event{Kind: EventHistoryChanged})
	}
	return err
}

// Redo re-applies the most recently undone session, loading unloaded chunks
// first like Undo.
func (e *Engine) Redo() error {
	if e.Busy() {
		return ErrBusy
	}
	if b := e.history.NextRedo(); b != nil && e.whenResident("redo", b.Chunks(), e.redo) {
		return nil
	}
	return e.redo()
}

func (e *Engine) redo() error {
	_, err := e.history.Redo(e.store)
	if !errors.Is(err, history.ErrNothingToRedo) && !errors.Is(err, history.ErrBatchOpen) {
		e.publish(Event{Kind: EventHistoryChanged})
	}
	return err
}

// CanUndo reports whether Undo has something to revert.
func (e *Engine) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether Redo has something to re-apply.
func (e *Engine) CanRedo() bool { return e.history.CanRedo() }

// Pick casts a ray against the world, up to the selection distance.
func (e *Engine) Pick(origin, dir mgl32.Vec3) (picking.Hit, bool) {
	r := picking.NewRay(origin, dir)
	return picking.CastVoxels(r, float32(e.settings.SelectionDistance), func(p voxel.Pos) bool {
		return !e.store.Voxel(p).IsEmpty()
	})
}
