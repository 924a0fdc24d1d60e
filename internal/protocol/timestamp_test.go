// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordedAt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *time.Time
	}{
		{name: "dashes and underscore", in: "2025-05-13_160405.wav", want: ptr(time.Date(2025, 5, 13, 16, 4, 5, 0, time.UTC))},
		{name: "compact with dash", in: "20250513-160405", want: ptr(time.Date(2025, 5, 13, 16, 4, 5, 0, time.UTC))},
		{name: "underscores", in: "REC_2024_12_31_2359.hda", want: ptr(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC))},
		{name: "seconds omitted", in: "2025-01-02_0930-Rec01.hda", want: ptr(time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC))},
		{name: "no separator before time", in: "20250513160405.wav", want: nil},
		{name: "no date", in: "memo.wav", want: nil},
		{name: "invalid month", in: "2025-13-01_101010", want: nil},
		{name: "invalid day", in: "2025-02-30_101010", want: nil},
		{name: "invalid hour", in: "2025-02-10_251010", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRecordedAt(tt.in, time.UTC)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "want %s got %s", tt.want, got)
		})
	}
}

func TestParseRecordedAt_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got := ParseRecordedAt("2025-05-13_160405", loc)
	require.NotNil(t, got)
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 14, got.UTC().Hour())
}

func ptr(t time.Time) *time.Time { return &t }
