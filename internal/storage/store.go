// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package storage writes downloaded recordings into the local recordings
// directory. Files only appear under their final name once fully written
// and fsynced.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/renameio/v2"
)

// Store is the local recordings directory.
type Store struct {
	root string
}

// NewStore creates root if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage: empty root")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the recordings directory.
func (s *Store) Root() string { return s.root }

// LocalFilename derives a safe local name from a device filename: directory
// components are dropped and anything outside [A-Za-z0-9._-] becomes '_'.
// A name that had to be rewritten carries a short hash of the original, so
// two device names never map to the same local file.
func LocalFilename(original string) string {
	name := sanitizeName(original)
	if name == original {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + nameHash(original) + ext
}

func sanitizeName(original string) string {
	base := original
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if name == "" {
		name = "recording"
	}
	return name
}

func nameHash(original string) string {
	sum := sha256.Sum256([]byte(original))
	return hex.EncodeToString(sum[:4])
}

// PathFor returns the confined absolute path for a device filename.
func (s *Store) PathFor(original string) (local, path string, err error) {
	local = LocalFilename(original)
	path, err = ConfineRelPath(s.root, local)
	if err != nil {
		return "", "", err
	}
	return local, path, nil
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a local recording. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if _, err := ConfineRelPath(s.root, filepath.Base(path)); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// PendingWrite is an in-progress download. Bytes go to a temporary file in
// the same directory; Commit fsyncs and atomically renames it into place.
type PendingWrite struct {
	LocalFilename string
	Path          string

	file    *renameio.PendingFile
	written int64
	done    bool
}

// Create starts a pending write for a device filename. An existing file at
// the target path is only replaced on Commit.
func (s *Store) Create(original string) (*PendingWrite, error) {
	local, path, err := s.PathFor(original)
	if err != nil {
		return nil, err
	}
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return nil, fmt.Errorf("storage: create pending file: %w", err)
	}
	return &PendingWrite{LocalFilename: local, Path: path, file: f}, nil
}

func (w *PendingWrite) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Written returns the number of bytes written so far.
func (w *PendingWrite) Written() int64 { return w.written }

// Commit makes the file visible under its final name.
func (w *PendingWrite) Commit() error {
	if w.done {
		return errors.New("storage: pending write already finished")
	}
	w.done = true
	if err := w.file.CloseAtomicallyReplace(); err != nil {
		_ = w.file.Cleanup()
		return fmt.Errorf("storage: commit %s: %w", w.Path, err)
	}
	return nil
}

// Abort discards the temporary file. Safe to call after Commit.
func (w *PendingWrite) Abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.file.Cleanup()
}
