// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/recsync/internal/device"
	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/metrics"
	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/protocol"
	"github.com/ManuGH/recsync/internal/resilience"
	"github.com/ManuGH/recsync/internal/telemetry"
)

// ErrCountMismatch means the listing held a different number of records
// than the device reported a moment earlier.
var ErrCountMismatch = errors.New("catalog: listing does not match reported file count")

const incompleteWarning = "device returned incomplete data"

// Refresher fetches the catalog over the device transport and maintains
// the Cache. Concurrent refreshes for the same device collapse into one.
type Refresher struct {
	transport device.Transport
	lock      *device.Lock
	cache     *Cache
	decoder   *protocol.Decoder
	breaker   *resilience.Breaker
	group     singleflight.Group
	logger    zerolog.Logger
	now       func() time.Time
}

// RefresherOption customises a Refresher.
type RefresherOption func(*Refresher)

// WithBreaker replaces the default device breaker.
func WithBreaker(b *resilience.Breaker) RefresherOption {
	return func(r *Refresher) { r.breaker = b }
}

// WithClock overrides FetchedAt timestamps.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

func NewRefresher(t device.Transport, lock *device.Lock, cache *Cache, dec *protocol.Decoder, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		transport: t,
		lock:      lock,
		cache:     cache,
		decoder:   dec,
		logger:    log.WithComponent("catalog"),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.breaker == nil {
		r.breaker = resilience.NewBreaker("catalog", 3, 30*time.Second,
			resilience.WithFailureFilter(countsAgainstDevice))
	}
	return r
}

// countsAgainstDevice keeps caller cancellation and bad catalog bytes from
// tripping the breaker.
func countsAgainstDevice(err error) bool {
	if errors.Is(err, context.Canceled) || protocol.IsParseError(err) || errors.Is(err, ErrCountMismatch) {
		return false
	}
	return true
}

// DeviceID returns the transport's device identifier.
func (r *Refresher) DeviceID() string { return r.transport.ID() }

// Cached returns the cached snapshot without touching the device.
func (r *Refresher) Cached() (model.CatalogSnapshot, bool) {
	snap, ok := r.cache.Get(r.transport.ID())
	if ok {
		snap.Origin = model.OriginCached
	}
	return snap, ok
}

// Breaker exposes the device breaker so a re-attach can reset it.
func (r *Refresher) Breaker() *resilience.Breaker { return r.breaker }

// Refresh returns the device catalog, from cache when the reported file
// count is unchanged. A truncated or inconsistent listing falls back to the
// previously cached snapshot (with Warning set); without one, the decoded
// leading records are returned as OriginPartial together with the error.
func (r *Refresher) Refresh(ctx context.Context, force bool) (model.CatalogSnapshot, error) {
	key := r.transport.ID()
	if force {
		key += ":force"
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.refresh(ctx, force)
	})
	snap, _ := v.(model.CatalogSnapshot)
	return snap, err
}

func (r *Refresher) refresh(ctx context.Context, force bool) (model.CatalogSnapshot, error) {
	deviceID := r.transport.ID()
	ctx, span := telemetry.Tracer("recsync/catalog").Start(ctx, "catalog.refresh")
	defer span.End()
	logger := r.logger.With().Str(log.FieldDeviceID, deviceID).Bool("force", force).Logger()

	release, err := r.lock.Acquire(ctx, "catalog")
	if err != nil {
		telemetry.RecordError(span, err, "lock")
		if !force && device.IsLockTimeout(err) {
			if snap, ok := r.Cached(); ok {
				snap.Warning = "device busy; serving cached catalog"
				metrics.RecordCatalogRefresh("cached", len(snap.Entries))
				logger.Debug().Msg("device busy, served cached catalog")
				return snap, nil
			}
		}
		metrics.RecordCatalogRefresh("error", 0)
		return model.CatalogSnapshot{}, err
	}
	defer release()

	var count int
	err = r.breaker.Execute(func() error {
		var cerr error
		count, cerr = r.transport.FileCount(ctx)
		return cerr
	})
	if err != nil {
		return r.fail(span, logger, "file count", err)
	}

	if !r.cache.ShouldRefetch(deviceID, count, force) {
		snap, _ := r.Cached()
		span.SetAttributes(telemetry.CatalogAttributes(deviceID, snap.TotalCount, len(snap.Entries), string(snap.Origin))...)
		metrics.RecordCatalogRefresh("cached", len(snap.Entries))
		return snap, nil
	}

	stale, hadStale := r.cache.Invalidate(deviceID)

	var buf []byte
	err = r.breaker.Execute(func() error {
		var lerr error
		buf, lerr = r.transport.ListFiles(ctx)
		return lerr
	})
	if err != nil {
		return r.fail(span, logger, "list files", err)
	}

	recs, decErr := r.decoder.Decode(buf)
	if decErr == nil && len(recs) != count {
		decErr = fmt.Errorf("%w: reported %d, listed %d", ErrCountMismatch, count, len(recs))
	}
	if decErr != nil {
		telemetry.RecordError(span, decErr, "parse")
		logger.Warn().Err(decErr).Int("decoded", len(recs)).Bool("fallback", hadStale).Msg(incompleteWarning)
		if hadStale {
			stale.Origin = model.OriginCached
			stale.Warning = incompleteWarning + "; serving last valid catalog"
			metrics.RecordCatalogRefresh("fallback", len(stale.Entries))
			return stale, nil
		}
		metrics.RecordCatalogRefresh("partial", len(recs))
		return model.CatalogSnapshot{
			DeviceID:   deviceID,
			TotalCount: count,
			Entries:    recs,
			FetchedAt:  r.now(),
			Origin:     model.OriginPartial,
			Warning:    incompleteWarning,
		}, decErr
	}

	snap := model.CatalogSnapshot{
		DeviceID:   deviceID,
		TotalCount: count,
		Entries:    recs,
		FetchedAt:  r.now(),
		Origin:     model.OriginFresh,
	}
	if err := r.cache.Put(deviceID, snap); err != nil {
		return r.fail(span, logger, "cache put", err)
	}
	span.SetAttributes(telemetry.CatalogAttributes(deviceID, count, len(recs), string(snap.Origin))...)
	metrics.RecordCatalogRefresh("fresh", len(recs))
	logger.Info().Int(log.FieldTotalCount, count).Msg("catalog fetched")
	return snap, nil
}

func (r *Refresher) fail(span trace.Span, logger zerolog.Logger, op string, err error) (model.CatalogSnapshot, error) {
	errType := "device"
	if device.IsTransient(err) {
		errType = "transient_io"
	}
	telemetry.RecordError(span, err, errType)
	metrics.RecordCatalogRefresh("error", 0)
	logger.Warn().Err(err).Str("op", op).Msg("catalog refresh failed")
	return model.CatalogSnapshot{}, fmt.Errorf("catalog %s: %w", op, err)
}
