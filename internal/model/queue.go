// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// ItemStatus is the lifecycle state of a DownloadQueueItem.
type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemDownloading ItemStatus = "downloading"
	ItemCompleted   ItemStatus = "completed"
	ItemFailed      ItemStatus = "failed"
	ItemCancelled   ItemStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemCompleted, ItemFailed, ItemCancelled:
		return true
	default:
		return false
	}
}

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:     {ItemDownloading, ItemCancelled},
	ItemDownloading: {ItemCompleted, ItemPending, ItemFailed, ItemCancelled},
}

// CanTransition reports whether from -> to is a legal queue item transition.
func CanTransition(from, to ItemStatus) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// QueueItem is one file scheduled for download.
type QueueItem struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id,omitempty"`
	Filename      string     `json:"filename"`
	FileSizeBytes int64      `json:"file_size_bytes"`
	Status        ItemStatus `json:"status"`
	ProgressBytes int64      `json:"progress_bytes"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	// Force skips the registry check (explicit re-download).
	Force      bool      `json:"force,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionStatus is the aggregate state of a download batch.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionFailed    SessionStatus = "failed"
)

// Session is one bounded batch-download operation. At most one session is
// active at a time.
type Session struct {
	ID             string        `json:"id"`
	TotalFiles     int           `json:"total_files"`
	CompletedFiles int           `json:"completed_files"`
	FailedFiles    int           `json:"failed_files"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}
