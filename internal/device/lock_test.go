// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_TimeoutIsTransient(t *testing.T) {
	l := NewLock(30 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "download")
	require.NoError(t, err)
	defer release()

	holder, _ := l.Holder()
	assert.Equal(t, "download", holder)

	start := time.Now()
	_, err = l.Acquire(context.Background(), "catalog")
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	assert.True(t, IsTransient(err))
	assert.True(t, IsLockTimeout(err))

	var te *TransientIOError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "lock:catalog", te.Op)
}

func TestLock_ParentCancelIsNotTimeout(t *testing.T) {
	l := NewLock(time.Second)
	release, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "b")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsLockTimeout(err))
}

func TestLock_ReleaseIsIdempotent(t *testing.T) {
	l := NewLock(50 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	release()
	release()

	r1, ok := l.TryAcquire("b")
	require.True(t, ok)
	_, ok = l.TryAcquire("c")
	assert.False(t, ok, "double release must not admit two holders")
	r1()
}

func TestLock_MutualExclusion(t *testing.T) {
	l := NewLock(2 * time.Second)
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "worker")
			if err != nil {
				t.Error(err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrDisconnected))
	assert.True(t, IsTransient(Transient("read", errors.New("usb stall"))))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("other")))
	assert.False(t, IsTransient(nil))
	assert.Nil(t, Transient("x", nil))

	inner := Transient("read", ErrTimeout)
	assert.Same(t, inner, Transient("again", inner))
}
