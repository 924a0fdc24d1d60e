// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/recsync/internal/model"
)

// stores runs each contract test against both backends.
func stores(t *testing.T) map[string]Registry {
	t.Helper()
	sq, err := NewSqliteStore(filepath.Join(t.TempDir(), DBFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Registry{
		"sqlite": sq,
		"memory": NewMemoryStore(),
	}
}

func record(name string) model.SyncedFileRecord {
	return model.SyncedFileRecord{
		OriginalFilename: name,
		LocalFilename:    name,
		FilePath:         "/tmp/" + name,
		FileSizeBytes:    1024,
		SyncedAt:         time.UnixMilli(1_700_000_000_000).UTC(),
	}
}

func TestRegistry_Contract(t *testing.T) {
	ctx := context.Background()
	for name, reg := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := reg.IsSynced(ctx, "a.hda")
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := reg.Get(ctx, "a.hda")
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, reg.Upsert(ctx, record("a.hda")))
			require.NoError(t, reg.Upsert(ctx, record("b.hda")))

			ok, err = reg.IsSynced(ctx, "a.hda")
			require.NoError(t, err)
			assert.True(t, ok)

			got, err = reg.Get(ctx, "a.hda")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "/tmp/a.hda", got.FilePath)
			assert.Equal(t, int64(1024), got.FileSizeBytes)
			assert.True(t, got.SyncedAt.Equal(time.UnixMilli(1_700_000_000_000)))

			names, err := reg.ListFilenames(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.hda", "b.hda"}, names)

			n, err := reg.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, reg.Remove(ctx, "a.hda"))
			assert.ErrorIs(t, reg.Remove(ctx, "a.hda"), ErrNotFound)

			ok, err = reg.IsSynced(ctx, "a.hda")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRegistry_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, reg := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, reg.Upsert(ctx, record("a.hda")))
			first, err := reg.Get(ctx, "a.hda")
			require.NoError(t, err)

			again := record("a.hda")
			again.FilePath = "/data/a (1).hda"
			again.FileSizeBytes = 2048
			require.NoError(t, reg.Upsert(ctx, again))

			got, err := reg.Get(ctx, "a.hda")
			require.NoError(t, err)
			assert.Equal(t, first.ID, got.ID)
			assert.Equal(t, "/data/a (1).hda", got.FilePath)
			assert.Equal(t, int64(2048), got.FileSizeBytes)

			n, err := reg.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestRegistry_RejectsEmptyFilename(t *testing.T) {
	ctx := context.Background()
	for name, reg := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := reg.Upsert(ctx, model.SyncedFileRecord{})
			assert.True(t, IsWriteError(err))
		})
	}
}

func TestSqliteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DBFileName)

	s, err := NewSqliteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, record("keep.hda")))
	require.NoError(t, s.Close())

	s, err = NewSqliteStore(path)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.IsSynced(ctx, "keep.hda")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_FailWrites(t *testing.T) {
	m := NewMemoryStore()
	m.FailWrites = errors.New("disk full")

	err := m.Upsert(context.Background(), record("a.hda"))
	require.Error(t, err)
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "upsert", we.Op)
	assert.Equal(t, "a.hda", we.Filename)

	ok, _ := m.IsSynced(context.Background(), "a.hda")
	assert.False(t, ok)
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	reg, err := NewStore("", dir)
	require.NoError(t, err)
	assert.IsType(t, &SqliteStore{}, reg)
	require.NoError(t, reg.Close())
	assert.FileExists(t, filepath.Join(dir, DBFileName))

	reg, err = NewStore("memory", dir)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, reg)

	_, err = NewStore("json", dir)
	assert.Error(t, err)
}

func TestPruneMissing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := NewMemoryStore()

	present := filepath.Join(dir, "present.hda")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o600))

	require.NoError(t, reg.Upsert(ctx, model.SyncedFileRecord{OriginalFilename: "present.hda", FilePath: present}))
	require.NoError(t, reg.Upsert(ctx, model.SyncedFileRecord{OriginalFilename: "gone.hda", FilePath: filepath.Join(dir, "gone.hda")}))

	res, err := PruneMissing(ctx, reg, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, []string{"gone.hda"}, res.Missing)
	assert.Zero(t, res.Removed)

	res, err = PruneMissing(ctx, reg, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	names, _ := reg.ListFilenames(ctx)
	assert.Equal(t, []string{"present.hda"}, names)
}
