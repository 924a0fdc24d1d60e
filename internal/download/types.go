// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package download

import (
	"errors"
	"time"

	"github.com/ManuGH/recsync/internal/model"
)

var (
	// ErrSizeMismatch means the received byte count differs from the
	// catalog-reported size. The file is discarded and never registered.
	ErrSizeMismatch = errors.New("download: size mismatch")
	// ErrCancelled is the cause attached to a transfer aborted by CancelAll.
	ErrCancelled = errors.New("download: cancelled")
	// ErrNotQueued is returned for boundary calls naming a file with no open
	// queue item.
	ErrNotQueued = errors.New("download: file not queued")
)

// Config holds the tunables that may change at runtime.
type Config struct {
	MaxAttempts      int
	RetryBackoff     time.Duration
	ProgressInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		RetryBackoff:     time.Second,
		ProgressInterval: 250 * time.Millisecond,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	return c
}

// Result is the structured outcome of a boundary operation.
type Result struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path,omitempty"`
	Error    string `json:"error,omitempty"`
}

// State is a point-in-time copy of the scheduler.
type State struct {
	Queue        []model.QueueItem `json:"queue"`
	Session      *model.Session    `json:"session,omitempty"`
	IsProcessing bool              `json:"is_processing"`
	IsPaused     bool              `json:"is_paused"`
}

// Stats summarises the registry and queue.
type Stats struct {
	TotalSynced    int `json:"total_synced"`
	PendingInQueue int `json:"pending_in_queue"`
	FailedInQueue  int `json:"failed_in_queue"`
}

// markedFailed is the cancellation cause for MarkFailed on an in-flight item.
type markedFailed struct{ reason string }

func (m *markedFailed) Error() string { return m.reason }
