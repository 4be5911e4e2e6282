package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Faultbox/blockforge/internal/engine/chunk"
	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

type failingBackend struct {
	Backend
	writeErr error
	block    chan struct{}
}

func (f *failingBackend) WriteChunks(ctx context.Context, project string, recs []Record) error {
	if f.block != nil {
		<-f.block
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.Backend.WriteChunks(ctx, project, recs)
}

func newBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatal(err)
	}
	br := NewBridge(b)
	t.Cleanup(func() { _ = br.Close() })
	return br
}

func TestBridgeFlushThenLoad(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t)
	p, err := br.CreateProject(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}

	store := chunk.NewStore(chunk.DefaultLimits())
	for i := 0; i < 40; i++ {
		if _, err := store.SetVoxel(voxel.Pos{X: i - 20, Y: i % 5, Z: 3}, voxel.Of(1)); err != nil {
			t.Fatal(err)
		}
	}
	dirty := store.DirtyChunks()

	done, err := br.Flush(ctx, p.ID, dirty)
	if err != nil {
		t.Fatal(err)
	}
	res := <-done
	if res.Err != nil {
		t.Fatalf("flush: %v", res.Err)
	}
	for _, f := range res.Written {
		store.MarkFlushed(f.Coord, f.Version)
	}
	if store.HasDirty() {
		t.Error("chunks still dirty after successful flush")
	}

	ents := []Entity{NewEntity("tree", [3]float32{1, 2, 3})}
	if err := <-br.SaveEnvironment(ctx, p.ID, ents); err != nil {
		t.Fatal(err)
	}
	if err := <-br.SaveSetting(ctx, p.ID, "greedy", []byte("true")); err != nil {
		t.Fatal(err)
	}

	loaded := <-br.LoadProject(ctx, p.ID)
	if loaded.Err != nil {
		t.Fatalf("load: %v", loaded.Err)
	}
	fresh := chunk.NewStore(chunk.DefaultLimits())
	if err := fresh.ReplaceAll(loaded.Chunks); err != nil {
		t.Fatal(err)
	}
	if fresh.TotalBlocks() != store.TotalBlocks() {
		t.Errorf("loaded %d blocks, want %d", fresh.TotalBlocks(), store.TotalBlocks())
	}
	if len(loaded.Entities) != 1 || loaded.Entities[0].ID != ents[0].ID {
		t.Errorf("entities = %+v", loaded.Entities)
	}
	if string(loaded.Settings["greedy"]) != "true" {
		t.Errorf("settings = %v", loaded.Settings)
	}

	cr := <-br.LoadChunk(ctx, p.ID, voxel.Pos{X: -20, Y: 0, Z: 3}.Chunk())
	if cr.Err != nil || !cr.Found {
		t.Errorf("LoadChunk = %+v", cr)
	}
	cr = <-br.LoadChunk(ctx, p.ID, voxel.ChunkCoord{X: 99})
	if cr.Err != nil || cr.Found {
		t.Errorf("missing LoadChunk = %+v", cr)
	}
}

func TestBridgeEmptySnapshotDeletesRecord(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t)
	p, _ := br.CreateProject(ctx, "demo")

	store := chunk.NewStore(chunk.DefaultLimits())
	pos := voxel.Pos{X: 1, Y: 1, Z: 1}
	store.SetVoxel(pos, voxel.Of(2))
	done, _ := br.Flush(ctx, p.ID, store.DirtyChunks())
	<-done

	store.SetVoxel(pos, voxel.Voxel{})
	done, _ = br.Flush(ctx, p.ID, store.DirtyChunks())
	if res := <-done; res.Err != nil || len(res.Written) != 1 {
		t.Fatalf("flush = %+v", res)
	}

	coords, err := br.Backend().ChunkCoords(ctx, p.ID)
	if err != nil || len(coords) != 0 {
		t.Errorf("coords after clearing = %v %v", coords, err)
	}
}

func TestBridgeLoadFailures(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t)

	var nf *NotFoundError
	if res := <-br.LoadProject(ctx, "missing"); !errors.As(res.Err, &nf) {
		t.Errorf("err = %v, want NotFoundError", res.Err)
	}

	p, _ := br.CreateProject(ctx, "broken")
	good, _ := EncodeChunk(testSnapshot(voxel.ChunkCoord{}, 0))
	if err := br.Backend().WriteChunks(ctx, p.ID, []Record{
		{Coord: voxel.ChunkCoord{}, Data: good},
		{Coord: voxel.ChunkCoord{X: 1}, Data: []byte("garbage-garbage")},
	}); err != nil {
		t.Fatal(err)
	}

	res := <-br.LoadProject(ctx, p.ID)
	var cd *CorruptDataError
	if !errors.As(res.Err, &cd) {
		t.Fatalf("err = %v, want CorruptDataError", res.Err)
	}
	if !errors.Is(res.Err, ErrBadMagic) {
		t.Errorf("err = %v, want wrapped ErrBadMagic", res.Err)
	}
	if res.Chunks != nil {
		t.Error("failed load returned partial chunks")
	}
}

func TestBridgeFlushFailureIsIOError(t *testing.T) {
	ctx := context.Background()
	inner, err := OpenBadger(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatal(err)
	}
	fb := &failingBackend{Backend: inner, writeErr: errors.New("disk full")}
	br := NewBridge(fb)
	defer br.Close()

	store := chunk.NewStore(chunk.DefaultLimits())
	store.SetVoxel(voxel.Pos{}, voxel.Of(1))

	done, err := br.Flush(ctx, "p", store.DirtyChunks())
	if err != nil {
		t.Fatal(err)
	}
	res := <-done
	var ioErr *IOError
	if !errors.As(res.Err, &ioErr) {
		t.Fatalf("err = %v, want IOError", res.Err)
	}
	if len(res.Written) != 0 {
		t.Error("failed flush reported written chunks")
	}
}

func TestBridgeSingleFlushInFlight(t *testing.T) {
	ctx := context.Background()
	inner, err := OpenBadger(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatal(err)
	}
	fb := &failingBackend{Backend: inner, block: make(chan struct{})}
	br := NewBridge(fb)
	defer br.Close()

	first, err := br.Flush(ctx, "p", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !br.Flushing() {
		t.Error("Flushing() = false with a flush in flight")
	}
	if _, err := br.Flush(ctx, "p", nil); !errors.Is(err, ErrFlushInFlight) {
		t.Errorf("second flush err = %v, want ErrFlushInFlight", err)
	}

	close(fb.block)
	<-first
	br.Wait()
	if br.Flushing() {
		t.Error("Flushing() = true after completion")
	}
	next, err := br.Flush(ctx, "p", nil)
	if err != nil {
		t.Fatalf("flush after completion: %v", err)
	}
	<-next
}
