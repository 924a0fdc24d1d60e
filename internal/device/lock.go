// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/recsync/internal/metrics"
	"github.com/ManuGH/recsync/internal/telemetry"
)

// DefaultLockTimeout bounds how long a caller waits for the device.
const DefaultLockTimeout = 5 * time.Second

// Lock grants exclusive access to the device connection. Catalog refresh
// and downloads both go through it, so commands never interleave on the wire.
type Lock struct {
	sem     *semaphore.Weighted
	timeout time.Duration

	mu         sync.Mutex
	holder     string
	acquiredAt time.Time
}

// NewLock returns a lock whose Acquire gives up after timeout.
func NewLock(timeout time.Duration) *Lock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Lock{sem: semaphore.NewWeighted(1), timeout: timeout}
}

// Timeout returns the acquire bound.
func (l *Lock) Timeout() time.Duration { return l.timeout }

// Acquire blocks until the lock is free, ctx is done, or the acquire timeout
// elapses. A timeout is reported as a *TransientIOError wrapping
// ErrLockTimeout. The returned release func is safe to call more than once.
func (l *Lock) Acquire(ctx context.Context, holder string) (func(), error) {
	start := time.Now()
	acquireCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.IncDeviceLockTimeout(holder)
		telemetry.RecordLockWait(ctx, holder, time.Since(start), false)
		return nil, &TransientIOError{Op: "lock:" + holder, Err: ErrLockTimeout}
	}
	wait := time.Since(start)
	metrics.ObserveDeviceLockWait(holder, wait)
	telemetry.RecordLockWait(ctx, holder, wait, true)

	l.mu.Lock()
	l.holder = holder
	l.acquiredAt = time.Now()
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.holder = ""
			l.acquiredAt = time.Time{}
			l.mu.Unlock()
			l.sem.Release(1)
		})
	}, nil
}

// TryAcquire takes the lock only if it is free right now.
func (l *Lock) TryAcquire(holder string) (func(), bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	l.mu.Lock()
	l.holder = holder
	l.acquiredAt = time.Now()
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.holder = ""
			l.mu.Unlock()
			l.sem.Release(1)
		})
	}, true
}

// Holder returns the current holder name and since when, or "" if free.
func (l *Lock) Holder() (string, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == "" {
		return "", 0
	}
	return l.holder, time.Since(l.acquiredAt)
}

// IsLockTimeout reports whether err came from an expired Acquire.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
