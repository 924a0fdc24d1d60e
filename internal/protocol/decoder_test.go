// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/recsync/internal/model"
)

func sig(b byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", b), SignatureSize)
}

// withDerived fills the fields the decoder computes so fixtures compare equal.
func withDerived(recs []model.Recording, bps int) []model.Recording {
	out := make([]model.Recording, len(recs))
	for i, r := range recs {
		r.DurationSeconds = EstimateDuration(r.SizeBytes, bps)
		r.DurationApproximate = true
		r.RecordedAt = ParseRecordedAt(r.Filename, time.UTC)
		out[i] = r
	}
	return out
}

func fixtures() []model.Recording {
	return withDerived([]model.Recording{
		{Filename: "2025-05-13_160405.wav", FileVersion: 1, SizeBytes: 80000, Signature: sig(0xab)},
		{Filename: "20250514-0930.hda", FileVersion: 2, SizeBytes: 160000, Signature: sig(0x01)},
		{Filename: "memo-without-date.wav", FileVersion: 1, SizeBytes: 240000, Signature: sig(0xff)},
		{Filename: "", FileVersion: 0, SizeBytes: 0, Signature: sig(0x00)},
	}, DefaultBytesPerSecond)
}

func TestDecode_RoundTrip(t *testing.T) {
	want := fixtures()
	buf, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_RoundTripLargeCatalog(t *testing.T) {
	var recs []model.Recording
	for i := 0; i < 500; i++ {
		recs = append(recs, model.Recording{
			Filename:    fmt.Sprintf("2024-01-%02d_1200%02d-Rec%03d.hda", i%28+1, i%60, i),
			FileVersion: uint8(i % 3),
			SizeBytes:   int64(i) * 1024,
			Signature:   sig(byte(i)),
		})
	}
	want := withDerived(recs, DefaultBytesPerSecond)
	buf, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, got, 500)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_HeaderOnly(t *testing.T) {
	got, err := Decode(make([]byte, HeaderSize))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecode_ShortHeader(t *testing.T) {
	got, err := Decode([]byte{0x01, 0x02})
	require.Error(t, err)
	assert.Nil(t, got)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "header", pe.Field)
	assert.Equal(t, HeaderSize, pe.Need)
	assert.Equal(t, 2, pe.Have)
}

func TestDecode_TruncatedTailReturnsLeadingRecords(t *testing.T) {
	recs := fixtures()[:3]
	buf, err := Encode(recs)
	require.NoError(t, err)

	tests := []struct {
		name      string
		cut       int
		wantField string
	}{
		{name: "signature cut", cut: 5, wantField: "signature"},
		{name: "inside reserved", cut: SignatureSize + 2, wantField: "reserved"},
		{name: "inside filename", cut: SignatureSize + reservedSize + fileSizeSize + 3, wantField: "filename"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(buf[:len(buf)-tt.cut])
			require.Error(t, err)
			assert.True(t, IsParseError(err))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, 2, pe.Index)
			assert.Equal(t, tt.wantField, pe.Field)
			assert.Greater(t, pe.Need, pe.Have)

			require.Len(t, got, 2)
			if diff := cmp.Diff(recs[:2], got); diff != "" {
				t.Fatalf("leading records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_DeclaredNameLongerThanBuffer(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf = append(buf, 0x01, 0x00, 0x10, 0x00) // version 1, name length 4096
	buf = append(buf, []byte("short")...)

	got, err := Decode(buf)
	assert.Empty(t, got)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "filename", pe.Field)
	assert.Equal(t, 4096, pe.Need)
	assert.Equal(t, 5, pe.Have)
}

func TestDecoder_DurationHeuristic(t *testing.T) {
	dec := NewDecoder(LookupProfile("legacy", 0))
	recs := []model.Recording{
		{Filename: "a", SizeBytes: 80000, Signature: sig(1)},
		{Filename: "b", SizeBytes: 160000, Signature: sig(2)},
		{Filename: "c", SizeBytes: 240000, Signature: sig(3)},
	}
	buf, err := Encode(recs)
	require.NoError(t, err)

	got, err := dec.Decode(buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(10), got[0].DurationSeconds)
	assert.Equal(t, int64(20), got[1].DurationSeconds)
	assert.Equal(t, int64(30), got[2].DurationSeconds)
	for _, r := range got {
		assert.True(t, r.DurationApproximate)
	}
}

func TestDecoder_ProfileOverride(t *testing.T) {
	dec := NewDecoder(LookupProfile("legacy", 16000))
	buf, err := Encode([]model.Recording{{Filename: "x", SizeBytes: 160000}})
	require.NoError(t, err)

	got, err := dec.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got[0].DurationSeconds)
	assert.Equal(t, strings.Repeat("00", SignatureSize), got[0].Signature)
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, int64(0), EstimateDuration(0, 8000))
	assert.Equal(t, int64(0), EstimateDuration(-5, 8000))
	assert.Equal(t, int64(1), EstimateDuration(4000, 8000))
	assert.Equal(t, int64(0), EstimateDuration(3999, 8000))
	assert.Equal(t, int64(10), EstimateDuration(80000, 0))
}

func TestLookupProfile(t *testing.T) {
	assert.Equal(t, DefaultBytesPerSecond, LookupProfile("LEGACY", 0).BytesPerSecond)
	assert.Equal(t, "legacy", LookupProfile("", 0).Model)
	unknown := LookupProfile("next-gen", 0)
	assert.Equal(t, "next-gen", unknown.Model)
	assert.Equal(t, DefaultBytesPerSecond, unknown.BytesPerSecond)
	assert.Equal(t, 24000, LookupProfile("next-gen", 24000).BytesPerSecond)
}

func TestEncode_RejectsInvalidRecords(t *testing.T) {
	_, err := Encode([]model.Recording{{Filename: "a", Signature: "zz"}})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = Encode([]model.Recording{{Filename: "a", SizeBytes: 1 << 33}})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = Encode([]model.Recording{{Filename: "a", Signature: "abcd"}})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
