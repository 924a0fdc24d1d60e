// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/recsync/internal/device"
	"github.com/ManuGH/recsync/internal/device/devicetest"
	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/protocol"
	"github.com/ManuGH/recsync/internal/resilience"
)

func newRefresher(t *testing.T, files int) (*Refresher, *devicetest.Fake, *device.Lock) {
	t.Helper()
	fake := devicetest.NewFake("dev-1")
	for i := 0; i < files; i++ {
		fake.AddSizedFile(time.Date(2024, 3, 1, 10, i, 0, 0, time.UTC).Format("2006-01-02_150405")+".hda", 16000)
	}
	lock := device.NewLock(100 * time.Millisecond)
	r := NewRefresher(fake, lock, NewCache(), protocol.NewDecoder(protocol.LookupProfile("legacy", 0)))
	return r, fake, lock
}

func TestRefresh_FreshThenCached(t *testing.T) {
	r, fake, _ := newRefresher(t, 3)
	ctx := context.Background()

	snap, err := r.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, model.OriginFresh, snap.Origin)
	assert.Equal(t, 3, snap.TotalCount)
	assert.True(t, snap.Consistent())
	assert.Equal(t, int64(2), snap.Entries[0].DurationSeconds)
	require.NotNil(t, snap.Entries[0].RecordedAt)

	snap, err = r.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, model.OriginCached, snap.Origin)
	assert.Equal(t, 1, fake.ListCalls(), "unchanged count must not relist")

	_, err = r.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.ListCalls(), "force relists")
}

func TestRefresh_CountChangeRefetches(t *testing.T) {
	r, fake, _ := newRefresher(t, 2)
	ctx := context.Background()
	_, err := r.Refresh(ctx, false)
	require.NoError(t, err)

	fake.AddSizedFile("2024-03-02_080000.hda", 8000)
	snap, err := r.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, model.OriginFresh, snap.Origin)
	assert.Len(t, snap.Entries, 3)
	assert.Equal(t, 2, fake.ListCalls())
}

func TestRefresh_ParseErrorFallsBackToLastValid(t *testing.T) {
	r, fake, _ := newRefresher(t, 2)
	ctx := context.Background()
	good, err := r.Refresh(ctx, false)
	require.NoError(t, err)

	buf, err := protocol.Encode(fake.Recordings())
	require.NoError(t, err)
	fake.SetListOverride(buf[:len(buf)-5])

	snap, err := r.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, model.OriginCached, snap.Origin)
	assert.Contains(t, snap.Warning, "incomplete")
	assert.Equal(t, good.Entries, snap.Entries)

	_, cached := r.Cached()
	assert.False(t, cached, "the fallback serves this refresh only")
}

func TestRefresh_ParseErrorWithoutCacheReturnsPartial(t *testing.T) {
	r, fake, _ := newRefresher(t, 3)
	buf, err := protocol.Encode(fake.Recordings())
	require.NoError(t, err)
	fake.SetListOverride(buf[:len(buf)-3])

	snap, err := r.Refresh(context.Background(), false)
	require.Error(t, err)
	assert.True(t, protocol.IsParseError(err))
	assert.Equal(t, model.OriginPartial, snap.Origin)
	assert.Len(t, snap.Entries, 2)

	_, ok := r.Cached()
	assert.False(t, ok, "partial snapshots are never cached")
}

func TestRefresh_CountMismatchIsNotCached(t *testing.T) {
	r, fake, _ := newRefresher(t, 2)
	fake.SetCountDelta(1)

	snap, err := r.Refresh(context.Background(), false)
	assert.ErrorIs(t, err, ErrCountMismatch)
	assert.Equal(t, model.OriginPartial, snap.Origin)
	_, ok := r.Cached()
	assert.False(t, ok)
}

func TestRefresh_DeferredWhileDeviceBusy(t *testing.T) {
	r, fake, lock := newRefresher(t, 1)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "download")
	require.NoError(t, err)

	_, err = r.Refresh(ctx, false)
	require.Error(t, err)
	assert.True(t, device.IsTransient(err))
	assert.True(t, device.IsLockTimeout(err))
	assert.Zero(t, fake.ListCalls())
	release()

	_, err = r.Refresh(ctx, false)
	require.NoError(t, err)

	release, err = lock.Acquire(ctx, "download")
	require.NoError(t, err)
	defer release()
	snap, err := r.Refresh(ctx, false)
	require.NoError(t, err, "busy device with cache serves cached")
	assert.Equal(t, model.OriginCached, snap.Origin)
	assert.NotEmpty(t, snap.Warning)
}

func TestRefresh_DisconnectedTripsBreaker(t *testing.T) {
	fake := devicetest.NewFake("dev-1")
	fake.SetDisconnected(true)
	b := resilience.NewBreaker("catalog-test", 2, time.Hour, resilience.WithFailureFilter(countsAgainstDevice))
	r := NewRefresher(fake, device.NewLock(time.Second), NewCache(), protocol.NewDecoder(protocol.LookupProfile("", 0)), WithBreaker(b))

	for i := 0; i < 2; i++ {
		_, err := r.Refresh(context.Background(), false)
		assert.ErrorIs(t, err, device.ErrDisconnected)
	}
	_, err := r.Refresh(context.Background(), false)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	fake.SetDisconnected(false)
	r.Breaker().Reset()
	_, err = r.Refresh(context.Background(), false)
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentCallsNeverOverlapOnDevice(t *testing.T) {
	r, fake, _ := newRefresher(t, 5)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(force bool) {
			defer wg.Done()
			_, _ = r.Refresh(context.Background(), force)
		}(i%2 == 0)
	}
	wg.Wait()
	assert.False(t, fake.Overlapped())
}
