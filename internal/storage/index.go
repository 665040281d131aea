package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an artifact id is not in the index.
var ErrNotFound = errors.New("artifact not found")

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Artifact describes one deployed snapshot.
type Artifact struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Bytes      int64     `json:"bytes"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
	DeployedAt time.Time `json:"deployed_at"`
}

// Index records deployed artifacts in an SQLite database.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) the index at path and applies migrations.
// The parent directory must exist: creating it could recreate an unmounted
// storage root. Use ":memory:" for a throwaway index.
func OpenIndex(path string) (*Index, error) {
	if path != ":memory:" {
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("index: %s: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func migrate(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("index: goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}
	return nil
}

// gooseLogger forwards goose output to the debug logger.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	debug.Verbose("goose: "+format, v...)
}

// Fatalf does not exit; goose.Up returns the error to the caller.
func (gooseLogger) Fatalf(format string, v ...interface{}) {
	debug.Errorf("goose: "+format, v...)
}

// Insert records a deployed artifact.
func (x *Index) Insert(ctx context.Context, a Artifact) error {
	_, err := x.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, path, bytes, width, height, captured_at, deployed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Path, a.Bytes, a.Width, a.Height, a.CapturedAt.UnixNano(), a.DeployedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("index: insert %s: %w", a.ID, err)
	}
	return nil
}

// Get returns the artifact with the given id.
func (x *Index) Get(ctx context.Context, id string) (Artifact, error) {
	row := x.db.QueryRowContext(ctx,
		`SELECT id, path, bytes, width, height, captured_at, deployed_at
		 FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("index: get %s: %w", id, err)
	}
	return a, nil
}

// Recent returns up to limit artifacts, newest first.
func (x *Index) Recent(ctx context.Context, limit int) ([]Artifact, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT id, path, bytes, width, height, captured_at, deployed_at
		 FROM artifacts ORDER BY deployed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: recent: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("index: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Count returns the number of indexed artifacts.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (x *Index) Close() error {
	return x.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(s scanner) (Artifact, error) {
	var (
		a                  Artifact
		captured, deployed int64
	)
	if err := s.Scan(&a.ID, &a.Path, &a.Bytes, &a.Width, &a.Height, &captured, &deployed); err != nil {
		return Artifact{}, err
	}
	a.CapturedAt = time.Unix(0, captured).UTC()
	a.DeployedAt = time.Unix(0, deployed).UTC()
	return a, nil
}
