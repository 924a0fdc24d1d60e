// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/recsync/internal/protocol"
)

func TestDirTransport_ListAndRead(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "2025-05-13_160405.wav"), bytes.Repeat([]byte{1}, 80000), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.wav"), []byte("hello"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(root, "subdir"), 0o750))

	tr := NewDirTransport(root, "dev-1", 3)
	ctx := context.Background()
	require.NoError(t, tr.Ping(ctx))

	n, err := tr.FileCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	buf, err := tr.ListFiles(ctx)
	require.NoError(t, err)
	recs, err := protocol.Decode(buf)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2025-05-13_160405.wav", recs[0].Filename)
	assert.Equal(t, int64(10), recs[0].DurationSeconds)
	assert.NotNil(t, recs[0].RecordedAt)

	var got bytes.Buffer
	var chunks int
	err = tr.ReadFile(ctx, "b.wav", 5, func(c []byte) error {
		chunks++
		got.Write(c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.String())
	assert.Equal(t, 2, chunks)
}

func TestDirTransport_Disconnected(t *testing.T) {
	tr := NewDirTransport(filepath.Join(t.TempDir(), "gone"), "dev", 0)
	err := tr.Ping(context.Background())
	assert.ErrorIs(t, err, ErrDisconnected)
	_, err = tr.FileCount(context.Background())
	assert.True(t, IsTransient(err))
}

func TestDirTransport_RejectsTraversal(t *testing.T) {
	tr := NewDirTransport(t.TempDir(), "dev", 0)
	err := tr.ReadFile(context.Background(), "../etc/passwd", 0, func([]byte) error { return nil })
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestDirTransport_MissingFile(t *testing.T) {
	tr := NewDirTransport(t.TempDir(), "dev", 0)
	err := tr.ReadFile(context.Background(), "nope.wav", 0, func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}
