// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device defines the boundary to the recorder: a half-duplex
// transport and the single lock that serialises every command on it.
package device

import "context"

// Transport is the command channel to one attached recorder. It is
// half-duplex: callers must hold the device Lock around every call.
type Transport interface {
	// ID returns a stable identifier for the attached device.
	ID() string
	// Ping reports ErrDisconnected when the device is gone.
	Ping(ctx context.Context) error
	// FileCount returns the number of recordings the device reports.
	FileCount(ctx context.Context) (int, error)
	// ListFiles returns the raw catalog buffer.
	ListFiles(ctx context.Context) ([]byte, error)
	// ReadFile streams filename to sink chunk by chunk. A sink error aborts
	// the transfer and is returned unchanged.
	ReadFile(ctx context.Context, filename string, size int64, sink func(chunk []byte) error) error
}
