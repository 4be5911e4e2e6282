package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Faultbox/blockforge/internal/engine/voxel"
)

// SQLiteBackend stores projects in a single SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			project TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (project, x, y, z)
		);`,
		`CREATE TABLE IF NOT EXISTS environment (
			project TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
			data BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			project TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (project, key)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) PutProject(ctx context.Context, p Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		p.ID, p.Name, p.Created.Unix())
	return err
}

func (s *SQLiteBackend) Project(ctx context.Context, id string) (Project, error) {
	var (
		p       Project
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created FROM projects WHERE id = ?`, id).Scan(&p.ID, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, &NotFoundError{Project: id}
	}
	if err != nil {
		return Project{}, err
	}
	p.Created = time.Unix(created, 0).UTC()
	return p, nil
}

func (s *SQLiteBackend) Projects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created FROM projects`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var (
			p       Project
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, err
		}
		p.Created = time.Unix(created, 0).UTC()
		out = append(out, p)
	}
	sortProjects(out)
	return out, rows.Err()
}

func (s *SQLiteBackend) DeleteProject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM chunks WHERE project = ?`,
		`DELETE FROM environment WHERE project = ?`,
		`DELETE FROM settings WHERE project = ?`,
		`DELETE FROM projects WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) WriteChunks(ctx context.Context, project string, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	upsert, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (project, x, y, z, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project, x, y, z) DO UPDATE SET data = excluded.data`)
	if err != nil {
		return err
	}
	defer upsert.Close()
	del, err := tx.PrepareContext(ctx,
		`DELETE FROM chunks WHERE project = ? AND x = ? AND y = ? AND z = ?`)
	if err != nil {
		return err
	}
	defer del.Close()

	for _, r := range recs {
		if r.Data == nil {
			_, err = del.ExecContext(ctx, project, r.Coord.X, r.Coord.Y, r.Coord.Z)
		} else {
			_, err = upsert.ExecContext(ctx, project, r.Coord.X, r.Coord.Y, r.Coord.Z, r.Data)
		}
		if err != nil {
			return fmt.Errorf("chunk %s: %w", r.Coord, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) ReadChunks(ctx context.Context, project string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x, y, z, data FROM chunks WHERE project = ? ORDER BY x, y, z`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Coord.X, &r.Coord.Y, &r.Coord.Z, &r.Data); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sortRecords(out)
	return out, rows.Err()
}

func (s *SQLiteBackend) ReadChunk(ctx context.Context, project string, c voxel.ChunkCoord) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM chunks WHERE project = ? AND x = ? AND y = ? AND z = ?`,
		project, c.X, c.Y, c.Z).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *SQLiteBackend) ChunkCoords(ctx context.Context, project string) ([]voxel.ChunkCoord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x, y, z FROM chunks WHERE project = ?`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []voxel.ChunkCoord
	for rows.Next() {
		var c voxel.ChunkCoord
		if err := rows.Scan(&c.X, &c.Y, &c.Z); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortCoords(out)
	return out, rows.Err()
}

func (s *SQLiteBackend) WriteEnvironment(ctx context.Context, project string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO environment (project, data) VALUES (?, ?)
		 ON CONFLICT(project) DO UPDATE SET data = excluded.data`, project, data)
	return err
}

func (s *SQLiteBackend) ReadEnvironment(ctx context.Context, project string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM environment WHERE project = ?`, project).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return data, err
}

func (s *SQLiteBackend) WriteSetting(ctx context.Context, project, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (project, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(project, key) DO UPDATE SET value = excluded.value`, project, key, value)
	return err
}

func (s *SQLiteBackend) ReadSettings(ctx context.Context, project string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE project = ?`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			k string
			v []byte
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
