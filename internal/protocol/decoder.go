// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package protocol decodes the device's binary file catalog.
//
// Layout: a 6-byte header, then repeated records of
//
//	1 byte   file version
//	3 bytes  name length (big-endian)
//	n bytes  ASCII filename
//	4 bytes  file size in bytes (big-endian)
//	6 bytes  reserved
//	16 bytes signature
package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/ManuGH/recsync/internal/model"
)

const (
	HeaderSize    = 6
	SignatureSize = 16

	versionSize  = 1
	nameLenSize  = 3
	fileSizeSize = 4
	reservedSize = 6

	// MaxNameLength is the largest name a 3-byte length prefix can carry.
	MaxNameLength = 1<<24 - 1
)

const (
	fieldHeader    = "header"
	fieldVersion   = "file_version"
	fieldNameLen   = "name_length"
	fieldName      = "filename"
	fieldFileSize  = "file_size"
	fieldReserved  = "reserved"
	fieldSignature = "signature"
)

// Decoder turns catalog buffers into recordings using one device profile.
type Decoder struct {
	Profile Profile
	// Location is used for timestamps parsed from filenames (default UTC).
	Location *time.Location
}

// NewDecoder returns a decoder for the given profile.
func NewDecoder(p Profile) *Decoder {
	if p.BytesPerSecond <= 0 {
		p.BytesPerSecond = DefaultBytesPerSecond
	}
	return &Decoder{Profile: p, Location: time.UTC}
}

// Decode parses buf. On a truncated tail it returns the records decoded so
// far together with a *ParseError.
func Decode(buf []byte) ([]model.Recording, error) {
	return NewDecoder(LookupProfile("", 0)).Decode(buf)
}

type reader struct {
	buf   []byte
	off   int
	index int
}

func (r *reader) take(n int, field string) ([]byte, error) {
	if remaining := len(r.buf) - r.off; remaining < n {
		return nil, &ParseError{Index: r.index, Offset: r.off, Field: field, Need: n, Have: remaining}
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Decode parses buf. See the package-level Decode.
func (d *Decoder) Decode(buf []byte) ([]model.Recording, error) {
	if len(buf) < HeaderSize {
		return nil, &ParseError{Field: fieldHeader, Need: HeaderSize, Have: len(buf)}
	}

	r := &reader{buf: buf, off: HeaderSize}
	var out []model.Recording
	for r.off < len(buf) {
		rec, err := d.decodeRecord(r)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
		r.index++
	}
	return out, nil
}

func (d *Decoder) decodeRecord(r *reader) (model.Recording, error) {
	var rec model.Recording

	b, err := r.take(versionSize, fieldVersion)
	if err != nil {
		return rec, err
	}
	rec.FileVersion = b[0]

	if b, err = r.take(nameLenSize, fieldNameLen); err != nil {
		return rec, err
	}
	nameLen := int(b[0])<<16 | int(b[1])<<8 | int(b[2])

	if b, err = r.take(nameLen, fieldName); err != nil {
		return rec, err
	}
	rec.Filename = string(b)

	if b, err = r.take(fileSizeSize, fieldFileSize); err != nil {
		return rec, err
	}
	rec.SizeBytes = int64(binary.BigEndian.Uint32(b))

	if _, err = r.take(reservedSize, fieldReserved); err != nil {
		return rec, err
	}

	if b, err = r.take(SignatureSize, fieldSignature); err != nil {
		return rec, err
	}
	rec.Signature = hex.EncodeToString(b)

	rec.DurationSeconds = EstimateDuration(rec.SizeBytes, d.Profile.BytesPerSecond)
	rec.DurationApproximate = true
	rec.RecordedAt = ParseRecordedAt(rec.Filename, d.Location)
	return rec, nil
}
