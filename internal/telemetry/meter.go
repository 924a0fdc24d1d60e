// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "recsync"

// Instrument names exported over OTLP.
const (
	ItemsMetric       = "recsync.download.items"
	BytesMetric       = "recsync.download.bytes"
	LockWaitMetric    = "recsync.device.lock_wait"
	DownloadStatusKey = "download.status"
	LockHolderKey     = "lock.holder"
	LockAcquiredKey   = "lock.acquired"
)

// Meter returns a named meter from the global provider. Lookups happen per
// call, so a provider installed after startup is honoured.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// RecordItemOutcome counts a queue item reaching a terminal state.
func RecordItemOutcome(ctx context.Context, deviceID, status string) {
	counter, err := Meter(meterName).Int64Counter(ItemsMetric,
		metric.WithDescription("Queue items that reached a terminal state"))
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(DeviceIDKey, deviceID),
		attribute.String(DownloadStatusKey, status),
	))
}

// RecordTransferredBytes adds bytes committed to local storage.
func RecordTransferredBytes(ctx context.Context, deviceID string, n int64) {
	counter, err := Meter(meterName).Int64Counter(BytesMetric,
		metric.WithDescription("Bytes committed to local storage"),
		metric.WithUnit("By"))
	if err != nil {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attribute.String(DeviceIDKey, deviceID)))
}

// RecordLockWait records how long an Acquire on the device lock waited.
func RecordLockWait(ctx context.Context, holder string, wait time.Duration, acquired bool) {
	hist, err := Meter(meterName).Float64Histogram(LockWaitMetric,
		metric.WithDescription("Time spent waiting for the device lock"),
		metric.WithUnit("s"))
	if err != nil {
		return
	}
	hist.Record(ctx, wait.Seconds(), metric.WithAttributes(
		attribute.String(LockHolderKey, holder),
		attribute.Bool(LockAcquiredKey, acquired),
	))
}
