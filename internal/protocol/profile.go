// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import "strings"

// DefaultBytesPerSecond is the byte rate used by the legacy device model.
const DefaultBytesPerSecond = 8000

// Profile carries per-model constants that the device does not transmit.
type Profile struct {
	Model          string
	BytesPerSecond int
}

var profiles = map[string]Profile{
	"legacy": {Model: "legacy", BytesPerSecond: DefaultBytesPerSecond},
}

// LookupProfile returns the profile for model. A positive override replaces
// the byte rate; unknown models fall back to the legacy rate.
func LookupProfile(model string, bytesPerSecondOverride int) Profile {
	key := strings.ToLower(strings.TrimSpace(model))
	p, ok := profiles[key]
	if !ok {
		p = Profile{Model: key, BytesPerSecond: DefaultBytesPerSecond}
		if p.Model == "" {
			p.Model = "legacy"
		}
	}
	if bytesPerSecondOverride > 0 {
		p.BytesPerSecond = bytesPerSecondOverride
	}
	return p
}

// EstimateDuration derives a duration in whole seconds from a file size.
// It is a heuristic: the device reports no sample rate.
func EstimateDuration(sizeBytes int64, bytesPerSecond int) int64 {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultBytesPerSecond
	}
	if sizeBytes <= 0 {
		return 0
	}
	bps := int64(bytesPerSecond)
	return (sizeBytes + bps/2) / bps
}
