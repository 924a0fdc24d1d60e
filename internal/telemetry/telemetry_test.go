// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "zipkin"})
	assert.ErrorContains(t, err, "unsupported exporter type")
}

func TestNewProvider_HTTPExporter(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "recsync-test",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:4318",
		SamplingRate: 0.5,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	_ = p.Shutdown(context.Background())
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(1.5).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), Sampler(0).Description())
	assert.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestDownloadAttributes_OmitsEmptySession(t *testing.T) {
	attrs := DownloadAttributes("", "a.hda", 10, 1)
	assert.Len(t, attrs, 3)
	attrs = DownloadAttributes("s1", "a.hda", 10, 1)
	assert.Contains(t, attrs, attribute.String(DownloadSessionKey, "s1"))
}

func TestRecordError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	_, span := tp.Tracer("t").Start(context.Background(), "op")

	RecordError(span, nil, "ignored")
	RecordError(span, errors.New("device gone"), "transient_io")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(ErrorTypeKey, "transient_io"))
}

func TestMeter_RecordsThroughGlobalProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(metricnoop.NewMeterProvider()) })

	ctx := context.Background()
	RecordItemOutcome(ctx, "dev-1", "completed")
	RecordItemOutcome(ctx, "dev-1", "completed")
	RecordItemOutcome(ctx, "dev-1", "failed")
	RecordTransferredBytes(ctx, "dev-1", 4096)
	RecordLockWait(ctx, "download", 20*time.Millisecond, true)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	outcomes := map[string]int64{}
	var bytes int64
	var lockWaits uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					switch m.Name {
					case ItemsMetric:
						status, _ := dp.Attributes.Value(DownloadStatusKey)
						outcomes[status.AsString()] += dp.Value
					case BytesMetric:
						bytes += dp.Value
					}
				}
			case metricdata.Histogram[float64]:
				if m.Name == LockWaitMetric {
					for _, dp := range data.DataPoints {
						lockWaits += dp.Count
					}
				}
			}
		}
	}
	assert.Equal(t, map[string]int64{"completed": 2, "failed": 1}, outcomes)
	assert.Equal(t, int64(4096), bytes)
	assert.Equal(t, uint64(1), lockWaits)
}
