package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
	"github.com/Faultbox/blockforge/internal/logger"
)

// Key layout:
//
//	p/<project>/meta          Project as JSON
//	p/<project>/c/<x,y,z>     chunk record
//	p/<project>/env           environment record
//	p/<project>/s/<key>       setting value
const projectPrefix = "p/"

func projectKey(id string) string { return projectPrefix + id + "/" }
func metaKey(id string) []byte { return []byte(projectKey(id) + "meta") }
func chunkPrefix(id string) []byte { return []byte(projectKey(id) + "c/") }
func chunkKey(id string, c voxel.ChunkCoord) []byte { return append(chunkPrefix(id), c.String()...) }
func envKey(id string) []byte { return []byte(projectKey(id) + "env") }
func settingPrefix(id string) []byte { return []byte(projectKey(id) + "s/") }

// BadgerBackend stores projects in a badger key-value database.
type BadgerBackend struct {
	db *badger.DB
}

// badgerLogger routes badger's own logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, a ...interface{}) { l.s.Errorf(f, a...) }
func (l badgerLogger) Warningf(f string, a ...interface{}) { l.s.Warnf(f, a...) }
func (l badgerLogger) Infof(f string, a ...interface{}) { l.s.Debugf(f, a...) }
func (l badgerLogger) Debugf(f string, a ...interface{}) { l.s.Debugf(f, a...) }

// OpenBadger opens (or creates) a badger database in dir.
func OpenBadger(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{s: logger.Named("badger").Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &BadgerBackend{db: db}, nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func (b *BadgerBackend) PutProject(_ context.Context, p Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(p.ID), data)
	})
}

func (b *BadgerBackend) Project(_ context.Context, id string) (Project, error) {
	var p Project
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Project{}, &NotFoundError{Project: id}
	}
	return p, err
}

func (b *BadgerBackend) Projects(_ context.Context) ([]Project, error) {
	var out []Project
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(projectPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if !strings.HasSuffix(string(item.Key()), "/meta") {
				continue
			}
			var p Project
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	sortProjects(out)
	return out, err
}

func (b *BadgerBackend) DeleteProject(_ context.Context, id string) error {
	return b.db.DropPrefix([]byte(projectKey(id)))
}

func (b *BadgerBackend) WriteChunks(_ context.Context, project string, recs []Record) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, r := range recs {
		var err error
		if r.Data == nil {
			err = wb.Delete(chunkKey(project, r.Coord))
		} else {
			err = wb.Set(chunkKey(project, r.Coord), r.Data)
		}
		if err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerBackend) ReadChunks(_ context.Context, project string) ([]Record, error) {
	prefix := chunkPrefix(project)
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			coord, err := parseCoord(string(item.Key()[len(prefix):]))
			if err != nil {
				return &CorruptDataError{Project: project, Record: "chunk key", Err: err}
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, Record{Coord: coord, Data: data})
		}
		return nil
	})
	sortRecords(out)
	return out, err
}

func (b *BadgerBackend) ReadChunk(_ context.Context, project string, c voxel.ChunkCoord) ([]byte, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(project, c))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *BadgerBackend) ChunkCoords(_ context.Context, project string) ([]voxel.ChunkCoord, error) {
	prefix := chunkPrefix(project)
	var out []voxel.ChunkCoord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			coord, err := parseCoord(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				return &CorruptDataError{Project: project, Record: "chunk key", Err: err}
			}
			out = append(out, coord)
		}
		return nil
	})
	sortCoords(out)
	return out, err
}

func (b *BadgerBackend) WriteEnvironment(_ context.Context, project string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(envKey(project), data)
	})
}

func (b *BadgerBackend) ReadEnvironment(_ context.Context, project string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(envKey(project))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return data, err
}

func (b *BadgerBackend) WriteSetting(_ context.Context, project, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(settingPrefix(project), key...), value)
	})
}

func (b *BadgerBackend) ReadSettings(_ context.Context, project string) (map[string][]byte, error) {
	prefix := settingPrefix(project)
	out := make(map[string][]byte)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key()[len(prefix):])] = v
		}
		return nil
	})
	return out, err
}

func parseCoord(s string) (voxel.ChunkCoord, error) {
	var c voxel.ChunkCoord
	if _, err := fmt.Sscanf(s, "%d,%d,%d", &c.X, &c.Y, &c.Z); err != nil {
		return c, fmt.Errorf("parse chunk coord %q: %w", s, err)
	}
	return c, nil
}
