// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events carries download and catalog notifications to observers.
// Publishing never blocks: slow subscribers lose events instead of stalling
// the download worker.
package events

import "time"

// Type identifies an event kind. It doubles as the metrics topic label.
type Type string

const (
	TypeProgress  Type = "download.progress"
	TypeItemState Type = "download.item"
	TypeSession   Type = "download.session"
	TypeWorker    Type = "download.worker"
	TypeCatalog   Type = "catalog.updated"
	TypeDevice    Type = "device.state"
)

// Event is one notification. Progress events carry both the delta since the
// previous progress event and the cumulative byte count, so an observer that
// missed events can resynchronise.
type Event struct {
	Type      Type      `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Status    string    `json:"status,omitempty"`
	Paused    bool      `json:"paused,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`

	BytesReceived int64 `json:"bytes_received,omitempty"`
	ProgressBytes int64 `json:"progress_bytes,omitempty"`
	TotalBytes    int64 `json:"total_bytes,omitempty"`
}
