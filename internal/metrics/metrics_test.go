// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	RecordDownloadOutcome("completed")
	ObserveDeviceLockWait("download", 10*time.Millisecond)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "recsync_downloads_total"))
	assert.True(t, strings.Contains(string(body), "recsync_device_lock_wait_seconds"))
}

func TestRecordDownloadOutcome(t *testing.T) {
	before := testutil.ToFloat64(downloadsTotal.WithLabelValues("failed"))
	RecordDownloadOutcome("failed")
	assert.Equal(t, before+1, testutil.ToFloat64(downloadsTotal.WithLabelValues("failed")))
}

func TestLockHolderLabelIsBounded(t *testing.T) {
	before := testutil.ToFloat64(deviceLockTimeouts.WithLabelValues("other"))
	IncDeviceLockTimeout("something-random")
	assert.Equal(t, before+1, testutil.ToFloat64(deviceLockTimeouts.WithLabelValues("other")))
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("catalog", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("catalog", "open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("catalog", "closed")))
}

func TestSetQueueItems(t *testing.T) {
	SetQueueItems(map[string]int{"pending": 3, "failed": 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(queueItems.WithLabelValues("pending")))
	assert.Equal(t, 0.0, testutil.ToFloat64(queueItems.WithLabelValues("completed")))
}

func TestIncBusDropReason_DefaultsLabels(t *testing.T) {
	before := testutil.ToFloat64(busDropped.WithLabelValues("unknown", "unknown"))
	IncBusDropReason("", "")
	assert.Equal(t, before+1, testutil.ToFloat64(busDropped.WithLabelValues("unknown", "unknown")))
}

func lockWaitSampleCount(t *testing.T, holder string) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "recsync_device_lock_wait_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "holder") == holder {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestObserveDeviceLockWait_CountsSamples(t *testing.T) {
	before := lockWaitSampleCount(t, "catalog")
	ObserveDeviceLockWait("catalog", 3*time.Millisecond)
	ObserveDeviceLockWait("catalog", 7*time.Millisecond)
	assert.Equal(t, before+2, lockWaitSampleCount(t, "catalog"))
}
