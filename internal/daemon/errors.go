// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingDeviceRoot is returned when no device transport can be built.
	ErrMissingDeviceRoot = errors.New("device.root is required")
)
