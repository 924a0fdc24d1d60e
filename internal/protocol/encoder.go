// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/ManuGH/recsync/internal/model"
)

// Encode writes records in the device catalog format. Derived fields
// (duration, recorded-at) are not part of the wire format and are ignored.
// An empty signature encodes as 16 zero bytes.
func Encode(records []model.Recording) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, HeaderSize))

	for i, rec := range records {
		if len(rec.Filename) > MaxNameLength {
			return nil, fmt.Errorf("%w: record %d name length %d exceeds %d", ErrInvalidRecord, i, len(rec.Filename), MaxNameLength)
		}
		if rec.SizeBytes < 0 || rec.SizeBytes > math.MaxUint32 {
			return nil, fmt.Errorf("%w: record %d size %d out of range", ErrInvalidRecord, i, rec.SizeBytes)
		}
		sig := make([]byte, SignatureSize)
		if rec.Signature != "" {
			decoded, err := hex.DecodeString(rec.Signature)
			if err != nil || len(decoded) != SignatureSize {
				return nil, fmt.Errorf("%w: record %d signature must be %d hex bytes", ErrInvalidRecord, i, SignatureSize)
			}
			sig = decoded
		}

		n := len(rec.Filename)
		buf.WriteByte(rec.FileVersion)
		buf.Write([]byte{byte(n >> 16), byte(n >> 8), byte(n)})
		buf.WriteString(rec.Filename)
		var size [fileSizeSize]byte
		binary.BigEndian.PutUint32(size[:], uint32(rec.SizeBytes))
		buf.Write(size[:])
		buf.Write(make([]byte, reservedSize))
		buf.Write(sig)
	}
	return buf.Bytes(), nil
}
