// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldDeviceID      = "device_id"
	FieldSessionID     = "session_id"
	FieldItemID        = "item_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldAttempt   = "attempt"

	// Catalog / transfer fields
	FieldFilename   = "filename"
	FieldSizeBytes  = "size_bytes"
	FieldTotalCount = "total_count"
	FieldOrigin     = "origin"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
