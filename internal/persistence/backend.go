// Package persistence stores projects: chunk records, the environment record
// and keyed settings. Storage runs off the frame loop; results come back on
// channels.
package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// Backend kinds accepted by Open.
const (
	KindBadger = "badger"
	KindSQLite = "sqlite"
)

// Project is the metadata record of a project.
type Project struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// NewProject allocates a project with a fresh id.
func NewProject(name string) Project {
	return Project{
		ID:      uuid.NewString(),
		Name:    name,
		Created: time.Now().UTC().Truncate(time.Second),
	}
}

// Entity is a non-block object placed in the world.
type Entity struct {
	ID       uuid.UUID  `json:"id"`
	Model    string     `json:"model"`
	Position [3]float32 `json:"position"`
	Rotation [3]float32 `json:"rotation"`
	Scale    [3]float32 `json:"scale"`
}

// NewEntity places a model at pos with unit scale.
func NewEntity(model string, pos [3]float32) Entity {
	return Entity{ID: uuid.New(), Model: model, Position: pos, Scale: [3]float32{1, 1, 1}}
}

// Record is one encoded chunk. A nil Data deletes the chunk.
type Record struct {
	Coord voxel.ChunkCoord
	Data  []byte
}

// Backend is a durable store. Implementations must be safe for concurrent use.
type Backend interface {
	PutProject(ctx context.Context, p Project) error
	Project(ctx context.Context, id string) (Project, error)
	Projects(ctx context.Context) ([]Project, error)
	DeleteProject(ctx context.Context, id string) error

	WriteChunks(ctx context.Context, project string, recs []Record) error
	ReadChunks(ctx context.Context, project string) ([]Record, error)
	ReadChunk(ctx context.Context, project string, c voxel.ChunkCoord) ([]byte, bool, error)
	ChunkCoords(ctx context.Context, project string) ([]voxel.ChunkCoord, error)

	WriteEnvironment(ctx context.Context, project string, data []byte) error
	ReadEnvironment(ctx context.Context, project string) ([]byte, error)

	WriteSetting(ctx context.Context, project, key string, value []byte) error
	ReadSettings(ctx context.Context, project string) (map[string][]byte, error)

	Close() error
}

// Open opens a backend of the given kind at path.
func Open(kind, path string) (Backend, error) {
	switch strings.ToLower(kind) {
	case KindBadger, "":
		return OpenBadger(path)
	case KindSQLite:
		return OpenSQLite(path)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Coord.Less(recs[j].Coord) })
}

func sortProjects(ps []Project) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].Created.Equal(ps[j].Created) {
			return ps[i].Created.Before(ps[j].Created)
		}
		return ps[i].ID < ps[j].ID
	})
}

func sortCoords(cs []voxel.ChunkCoord) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}
