// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/persistence/sqlite"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS synced_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	original_filename TEXT NOT NULL UNIQUE,
	local_filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	synced_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_synced_files_original ON synced_files(original_filename);
`

// SqliteStore persists the registry in the synced_files table.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the registry database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(context.Background(), db, schemaVersion, schemaV1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: migration failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) IsSynced(ctx context.Context, filename string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM synced_files WHERE original_filename = ?`, filename).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("registry: is synced: %w", err)
	}
	return true, nil
}

func (s *SqliteStore) Get(ctx context.Context, filename string) (*model.SyncedFileRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, original_filename, local_filename, file_path, file_size, synced_at
		FROM synced_files WHERE original_filename = ?`, filename)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get: %w", err)
	}
	return rec, nil
}

// Upsert is idempotent: a re-download overwrites the existing row and keeps
// its id.
func (s *SqliteStore) Upsert(ctx context.Context, rec model.SyncedFileRecord) error {
	if rec.OriginalFilename == "" {
		return &WriteError{Op: "upsert", Err: errors.New("empty original filename")}
	}
	syncedAt := rec.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO synced_files (original_filename, local_filename, file_path, file_size, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(original_filename) DO UPDATE SET
			local_filename = excluded.local_filename,
			file_path = excluded.file_path,
			file_size = excluded.file_size,
			synced_at = excluded.synced_at`,
		rec.OriginalFilename, rec.LocalFilename, rec.FilePath, rec.FileSizeBytes, syncedAt.UnixMilli())
	if err != nil {
		return &WriteError{Op: "upsert", Filename: rec.OriginalFilename, Err: err}
	}
	return nil
}

func (s *SqliteStore) Remove(ctx context.Context, filename string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM synced_files WHERE original_filename = ?`, filename)
	if err != nil {
		return &WriteError{Op: "remove", Filename: filename, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SqliteStore) ListFilenames(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT original_filename FROM synced_files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("registry: list filenames: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SqliteStore) List(ctx context.Context) ([]model.SyncedFileRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, original_filename, local_filename, file_path, file_size, synced_at
		FROM synced_files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []model.SyncedFileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM synced_files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("registry: count: %w", err)
	}
	return n, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*model.SyncedFileRecord, error) {
	var rec model.SyncedFileRecord
	var syncedAtMs int64
	if err := sc.Scan(&rec.ID, &rec.OriginalFilename, &rec.LocalFilename,
		&rec.FilePath, &rec.FileSizeBytes, &syncedAtMs); err != nil {
		return nil, err
	}
	rec.SyncedAt = time.UnixMilli(syncedAtMs).UTC()
	return &rec, nil
}
