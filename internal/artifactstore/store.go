// Package artifactstore persists the last valid build artifacts in SQLite,
// so that a process can start from the most recent good artifact when the
// current build fails.
package artifactstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/specialistvlad/bootreplay/internal/action"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// ErrNotFound is returned when no artifact has been saved yet.
var ErrNotFound = errors.New("no stored artifact")

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint        TEXT NOT NULL,
	config_fingerprint TEXT NOT NULL,
	body               BLOB NOT NULL,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS artifacts_fingerprint ON artifacts (fingerprint);
`

// Record describes one stored artifact.
type Record struct {
	ID                int64
	Fingerprint       string
	ConfigFingerprint string
	CreatedAt         time.Time
}

// Store provides a SQLite-backed artifact history.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite store at the provided path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save stores art unless it is identical to the latest stored artifact.
// It reports whether a row was written.
func (s *Store) Save(ctx context.Context, art *action.Artifact) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if art == nil {
		return false, fmt.Errorf("artifact is required")
	}
	body, err := art.Bytes()
	if err != nil {
		return false, fmt.Errorf("encode artifact: %w", err)
	}
	fp := action.Hash(body)

	latest, err := s.latestRecord(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if err == nil && latest.Fingerprint == fp {
		return false, nil
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO artifacts (fingerprint, config_fingerprint, body, created_at) VALUES (?, ?, ?, ?)`,
		fp, art.ConfigFingerprint, body, s.now().UTC().Format(timeFormat))
	if err != nil {
		return false, fmt.Errorf("insert artifact: %w", err)
	}
	return true, nil
}

// Latest returns the most recently saved artifact.
func (s *Store) Latest(ctx context.Context) (*action.Artifact, error) {
	var body []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT body FROM artifacts ORDER BY id DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest artifact: %w", err)
	}
	art, err := action.ParseArtifact(body)
	if err != nil {
		return nil, err
	}
	return art, nil
}

// History lists stored artifacts, newest first, at most limit of them.
func (s *Store) History(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, fingerprint, config_fingerprint, created_at FROM artifacts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep artifacts.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1")
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM artifacts WHERE id NOT IN (SELECT id FROM artifacts ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune artifacts: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) latestRecord(ctx context.Context) (Record, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, fingerprint, config_fingerprint, created_at FROM artifacts ORDER BY id DESC LIMIT 1`)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		created string
	)
	if err := row.Scan(&rec.ID, &rec.Fingerprint, &rec.ConfigFingerprint, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan artifact record: %w", err)
	}
	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t
	return rec, nil
}
