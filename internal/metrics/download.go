// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsync_downloads_total",
		Help: "Finished download items by outcome",
	}, []string{"outcome"}) // outcome=completed|failed|cancelled

	downloadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsync_download_retries_total",
		Help: "Download attempts that were re-queued after a transient failure",
	})

	downloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsync_download_bytes_total",
		Help: "Bytes received from the device and committed to storage",
	})

	queueItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recsync_queue_items",
		Help: "Download queue items by status",
	}, []string{"status"})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsync_sessions_total",
		Help: "Download sessions by final status",
	}, []string{"status"})

	registryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsync_registry_write_errors_total",
		Help: "Failed writes to the synced-file registry",
	})

	busDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsync_event_dropped_total",
		Help: "Events dropped or coalesced instead of blocking the worker",
	}, []string{"topic", "reason"})
)

// RecordDownloadOutcome counts a terminal item state.
func RecordDownloadOutcome(outcome string) {
	downloadsTotal.WithLabelValues(outcome).Inc()
}

// IncDownloadRetry counts a re-queued attempt.
func IncDownloadRetry() { downloadRetries.Inc() }

// AddDownloadBytes counts committed bytes.
func AddDownloadBytes(n int64) {
	if n > 0 {
		downloadBytes.Add(float64(n))
	}
}

// SetQueueItems publishes the per-status queue depth.
func SetQueueItems(counts map[string]int) {
	for _, s := range []string{"pending", "downloading", "completed", "failed", "cancelled"} {
		queueItems.WithLabelValues(s).Set(float64(counts[s]))
	}
}

// RecordSessionFinished counts a session's final status.
func RecordSessionFinished(status string) {
	sessionsTotal.WithLabelValues(status).Inc()
}

// IncRegistryWriteError counts a failed registry mutation.
func IncRegistryWriteError() { registryWriteErrors.Inc() }

// IncBusDropReason records a dropped event with a concrete reason.
func IncBusDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	busDropped.WithLabelValues(topic, reason).Inc()
}
