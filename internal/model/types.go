// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model holds the data types shared by the catalog, registry and
// download packages.
package model

import "time"

// Recording is one catalog entry as reported by the device. Identity is
// Filename; the device assigns no stable cross-session ID.
type Recording struct {
	Filename    string `json:"filename"`
	FileVersion uint8  `json:"file_version"`
	SizeBytes   int64  `json:"size_bytes"`
	// DurationSeconds is derived from SizeBytes and the device model's byte
	// rate. The device never transmits it.
	DurationSeconds     int64      `json:"duration_seconds"`
	DurationApproximate bool       `json:"duration_approximate"`
	RecordedAt          *time.Time `json:"recorded_at,omitempty"`
	// Signature is the 16-byte integrity token, lowercase hex.
	Signature string `json:"signature"`
}

// Origin tells where a catalog snapshot came from.
type Origin string

const (
	OriginFresh  Origin = "fresh"
	OriginCached Origin = "cached"
	// OriginPartial marks the leading records of a truncated listing. Partial
	// snapshots are returned to callers but never cached.
	OriginPartial Origin = "partial"
)

// CatalogSnapshot is the device file listing at a point in time.
// len(Entries) == TotalCount whenever Origin == OriginFresh.
type CatalogSnapshot struct {
	DeviceID   string      `json:"device_id"`
	TotalCount int         `json:"total_count"`
	Entries    []Recording `json:"entries"`
	FetchedAt  time.Time   `json:"fetched_at"`
	Origin     Origin      `json:"origin"`
	Warning    string      `json:"warning,omitempty"`
}

// Consistent reports whether the entry count matches the reported total.
func (s CatalogSnapshot) Consistent() bool {
	return len(s.Entries) == s.TotalCount
}

// SyncedFileRecord is a row of the synced_files table. A record exists only
// if the bytes were fully written to local storage.
type SyncedFileRecord struct {
	ID               int64     `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	LocalFilename    string    `json:"local_filename"`
	FilePath         string    `json:"file_path"`
	FileSizeBytes    int64     `json:"file_size"`
	SyncedAt         time.Time `json:"synced_at"`
}
