// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDisconnected = errors.New("device disconnected")
	ErrLockTimeout  = errors.New("device lock acquire timeout")
	ErrTimeout      = errors.New("device command timeout")
	ErrNotFound     = errors.New("file not found on device")
)

// TransientIOError marks a failure that may succeed on retry: command
// timeouts, disconnects mid-transfer and lock acquire timeouts.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// Transient wraps err as a *TransientIOError unless it already is one.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientIOError
	if errors.As(err, &te) {
		return err
	}
	return &TransientIOError{Op: op, Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientIOError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrDisconnected) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
