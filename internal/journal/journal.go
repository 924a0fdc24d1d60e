// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal mirrors non-terminal download queue items to disk so a
// restart can resume the queue.
package journal

import (
	"github.com/ManuGH/recsync/internal/model"
)

// Entry is a journaled queue item with its FIFO sequence number.
type Entry struct {
	Seq  uint64          `json:"seq"`
	Item model.QueueItem `json:"item"`
}

// Journal persists queue entries keyed by item ID.
type Journal interface {
	Save(e Entry) error
	Delete(itemID string) error
	// Load returns all entries ordered by Seq.
	Load() ([]Entry, error)
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Save(Entry) error       { return nil }
func (Nop) Delete(string) error    { return nil }
func (Nop) Load() ([]Entry, error) { return nil, nil }
func (Nop) Close() error           { return nil }

var _ Journal = Nop{}
