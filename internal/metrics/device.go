// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deviceLockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recsync_device_lock_wait_seconds",
		Help:    "Time spent waiting for exclusive device access",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
	}, []string{"holder"})

	deviceLockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsync_device_lock_timeouts_total",
		Help: "Device lock acquisitions that hit the acquire timeout",
	}, []string{"holder"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recsync_circuit_breaker_state",
		Help: "Circuit breaker state by component (active state=1, others 0)",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsync_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips (transitions to open state)",
	}, []string{"component", "reason"})
)

// lockHolderLabel maps free-form holder names onto a bounded label set.
func lockHolderLabel(holder string) string {
	switch holder {
	case "catalog", "download":
		return holder
	default:
		return "other"
	}
}

// ObserveDeviceLockWait records how long a holder waited for the device.
func ObserveDeviceLockWait(holder string, d time.Duration) {
	deviceLockWait.WithLabelValues(lockHolderLabel(holder)).Observe(d.Seconds())
}

// IncDeviceLockTimeout counts an acquire that gave up.
func IncDeviceLockTimeout(holder string) {
	deviceLockTimeouts.WithLabelValues(lockHolderLabel(holder)).Inc()
}

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(value)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when a breaker opens.
func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}
