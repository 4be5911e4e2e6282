package editor

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/importer"
)

// StartImport launches an import worker. Rule and request errors are
// returned at once; the outcome arrives as EventImportFinished or
// EventImportFailed. The engine is busy until then.
func (e *Engine) StartImport(req importer.Request) error {
	if e.Busy() {
		return ErrBusy
	}
	job, err := importer.Start(e.ctx, req, e.reg)
	if err != nil {
		return err
	}
	e.closeEdit()
	e.job = job
	e.busyChanged()
	return nil
}

// CancelImport stops listening to the running import. Its result is discarded.
func (e *Engine) CancelImport() {
	if e.job == nil {
		return
	}
	e.job.Close()
	e.job = nil
	e.busyChanged()
}

func (e *Engine) pollImport() {
	for e.job != nil {
		var (
			m  importer.Message
			ok bool
		)
		select {
		case m, ok = <-e.job.Messages():
		default:
			return
		}
		if !ok {
			e.finishImport()
			e.publish(Event{Kind: EventImportFailed, Text: "import stopped without a result"})
			return
		}

		switch m.Kind {
		case importer.Update:
			e.publish(Event{Kind: EventImportProgress, Text: m.Text})
		case importer.Failure:
			e.finishImport()
			e.publish(Event{Kind: EventImportFailed, Text: m.Text, Err: m.Err})
		case importer.Success:
			e.finishImport()
			t := m.Terrain
			if !e.whenResident("import", chunk.PlacementChunks(t.Placements), func() error { e.integrate(t); return nil }) {
				e.integrate(t)
			}
		}
	}
}

func (e *Engine) finishImport() {
	e.job.Close()
	e.job = nil
	e.busyChanged()
}

// integrate writes imported terrain in one bulk operation. Edit history is
// cleared since its deltas no longer describe the world.
func (e *Engine) integrate(t *importer.Terrain) {
	if err := e.store.BulkLoad(t.Placements); err != nil {
		e.publish(Event{Kind: EventImportFailed, Text: "imported terrain does not fit the world", Err: err})
		return
	}
	e.history.Clear()
	e.publish(Event{Kind: EventHistoryChanged})

	e.log.Info("import integrated",
		zap.Int("blocks", t.Len()),
		zap.Int("columns", t.Columns),
		zap.String("total", humanize.Comma(int64(e.store.TotalBlocks()))))
	e.publish(Event{
		Kind: EventImportFinished,
		Text: fmt.Sprintf("imported %s blocks from %d chunk columns", humanize.Comma(int64(t.Len())), t.Columns),
	})
}
