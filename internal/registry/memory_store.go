// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/recsync/internal/model"
)

// MemoryStore is a process-local Registry for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string]model.SyncedFileRecord
	order   []string

	// FailWrites makes every Upsert/Remove return a WriteError wrapping it.
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.SyncedFileRecord)}
}

func (m *MemoryStore) IsSynced(_ context.Context, filename string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[filename]
	return ok, nil
}

func (m *MemoryStore) Get(_ context.Context, filename string) (*model.SyncedFileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[filename]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Upsert(_ context.Context, rec model.SyncedFileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return &WriteError{Op: "upsert", Filename: rec.OriginalFilename, Err: m.FailWrites}
	}
	if rec.OriginalFilename == "" {
		return &WriteError{Op: "upsert", Err: errors.New("empty original filename")}
	}
	if rec.SyncedAt.IsZero() {
		rec.SyncedAt = time.Now().UTC()
	}
	if prev, ok := m.records[rec.OriginalFilename]; ok {
		rec.ID = prev.ID
	} else {
		m.nextID++
		rec.ID = m.nextID
		m.order = append(m.order, rec.OriginalFilename)
	}
	m.records[rec.OriginalFilename] = rec
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return &WriteError{Op: "remove", Filename: filename, Err: m.FailWrites}
	}
	if _, ok := m.records[filename]; !ok {
		return ErrNotFound
	}
	delete(m.records, filename)
	for i, n := range m.order {
		if n == filename {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) ListFilenames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

func (m *MemoryStore) List(_ context.Context) ([]model.SyncedFileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SyncedFileRecord, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.records[n])
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryStore) Close() error { return nil }
