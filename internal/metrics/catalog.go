// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsync_catalog_refresh_total",
		Help: "Catalog refresh outcomes",
	}, []string{"result"}) // result=fresh|cached|fallback|partial|error

	catalogEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recsync_catalog_entries",
		Help: "Number of entries in the last served catalog snapshot",
	})

	catalogCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsync_catalog_cache_lookups_total",
		Help: "Catalog cache lookups by outcome",
	}, []string{"outcome"}) // outcome=hit|miss|invalidated
)

// RecordCatalogRefresh counts one refresh outcome and the served entry count.
func RecordCatalogRefresh(result string, entries int) {
	catalogRefreshTotal.WithLabelValues(result).Inc()
	if result != "error" {
		catalogEntries.Set(float64(entries))
	}
}

// IncCatalogCacheLookup counts a cache lookup outcome.
func IncCatalogCacheLookup(outcome string) {
	catalogCacheLookups.WithLabelValues(outcome).Inc()
}
