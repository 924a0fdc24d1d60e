// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord is returned by Encode for records that cannot be
// represented on the wire.
var ErrInvalidRecord = errors.New("invalid catalog record")

// ParseError reports a catalog buffer that ends in the middle of a record.
// Records decoded before the failure are returned alongside it.
type ParseError struct {
	Index  int    // zero-based record index being decoded
	Offset int    // byte offset where the field starts
	Field  string // field that could not be read
	Need   int    // bytes required by the field
	Have   int    // bytes remaining in the buffer
}

func (e *ParseError) Error() string {
	if e.Field == fieldHeader {
		return fmt.Sprintf("catalog truncated: header needs %d bytes, have %d", e.Need, e.Have)
	}
	return fmt.Sprintf("catalog truncated: record %d field %s at offset %d needs %d bytes, have %d",
		e.Index, e.Field, e.Offset, e.Need, e.Have)
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
