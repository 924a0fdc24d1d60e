// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry is the durable index of recordings already downloaded,
// keyed by the original device filename.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ManuGH/recsync/internal/model"
)

// ErrNotFound is returned by Remove for an unknown filename.
var ErrNotFound = errors.New("registry: record not found")

// Registry is the synced-file index. Every mutation has committed durably
// when it returns nil.
type Registry interface {
	IsSynced(ctx context.Context, filename string) (bool, error)
	// Get returns (nil, nil) when no record exists.
	Get(ctx context.Context, filename string) (*model.SyncedFileRecord, error)
	// Upsert inserts or overwrites the record for rec.OriginalFilename.
	Upsert(ctx context.Context, rec model.SyncedFileRecord) error
	Remove(ctx context.Context, filename string) error
	ListFilenames(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]model.SyncedFileRecord, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// WriteError wraps a failed registry mutation. The download that produced
// it stays retryable.
type WriteError struct {
	Op       string
	Filename string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("registry %s %q: %v", e.Op, e.Filename, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteError reports whether err is a *WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// DBFileName is the registry database inside the data directory.
const DBFileName = "registry.sqlite"

// NewStore creates a Registry for backend ("sqlite" or "memory").
func NewStore(backend, dataDir string) (Registry, error) {
	switch backend {
	case "", "sqlite":
		return NewSqliteStore(filepath.Join(dataDir, DBFileName))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("registry: unsupported backend %q", backend)
	}
}
