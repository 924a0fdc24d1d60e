// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/protocol"
)

// DefaultChunkSize is the transfer unit for ReadFile.
const DefaultChunkSize = 64 * 1024

// DirTransport exposes a directory (a recorder mounted as mass storage, or a
// dump of one) through the Transport interface. The catalog is synthesised
// in the device wire format so the same decoder path is exercised.
type DirTransport struct {
	Root      string
	DeviceID  string
	ChunkSize int
}

// NewDirTransport returns a transport rooted at root.
func NewDirTransport(root, deviceID string, chunkSize int) *DirTransport {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if deviceID == "" {
		deviceID = filepath.Base(root)
	}
	return &DirTransport{Root: root, DeviceID: deviceID, ChunkSize: chunkSize}
}

func (t *DirTransport) ID() string { return t.DeviceID }

func (t *DirTransport) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(t.Root)
	if err != nil || !info.IsDir() {
		return Transient("ping", ErrDisconnected)
	}
	return nil
}

func (t *DirTransport) entries() ([]os.FileInfo, error) {
	dirents, err := os.ReadDir(t.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Transient("list", ErrDisconnected)
		}
		return nil, Transient("list", err)
	}
	var out []os.FileInfo
	for _, d := range dirents {
		if !d.Type().IsRegular() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (t *DirTransport) FileCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	files, err := t.entries()
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func (t *DirTransport) ListFiles(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := t.entries()
	if err != nil {
		return nil, err
	}
	recs := make([]model.Recording, 0, len(files))
	for _, f := range files {
		sum := md5.Sum([]byte(fmt.Sprintf("%s:%d:%d", f.Name(), f.Size(), f.ModTime().UnixNano())))
		recs = append(recs, model.Recording{
			Filename:    f.Name(),
			FileVersion: 1,
			SizeBytes:   f.Size(),
			Signature:   fmt.Sprintf("%x", sum[:]),
		})
	}
	return protocol.Encode(recs)
}

func (t *DirTransport) ReadFile(ctx context.Context, filename string, size int64, sink func(chunk []byte) error) error {
	if filepath.Base(filename) != filename {
		return fmt.Errorf("invalid device filename %q", filename)
	}
	f, err := os.Open(filepath.Join(t.Root, filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if pingErr := t.Ping(ctx); pingErr != nil {
				return pingErr
			}
			return fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return Transient("read", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, t.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := f.Read(buf)
		if n > 0 {
			if sinkErr := sink(buf[:n]); sinkErr != nil {
				return sinkErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return Transient("read", err)
		}
	}
}

var _ Transport = (*DirTransport)(nil)
