// SPDX-License-Identifier: MIT

// Package catalog keeps the last known device listing and decides when it
// must be fetched again.
package catalog

import (
	"errors"
	"sync"

	"github.com/ManuGH/recsync/internal/metrics"
	"github.com/ManuGH/recsync/internal/model"
)

// ErrInconsistentSnapshot is returned by Put for snapshots that must never
// be served from cache.
var ErrInconsistentSnapshot = errors.New("catalog: refusing to cache inconsistent snapshot")

// Stats holds cache counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Puts          int64 `json:"puts"`
	Invalidations int64 `json:"invalidations"`
	Devices       int   `json:"devices"`
}

// Cache holds one snapshot per device for the process lifetime. Entries do
// not expire; only a changed file count, a forced refresh or Invalidate
// replaces them.
type Cache struct {
	mu        sync.Mutex
	snapshots map[string]model.CatalogSnapshot
	stats     Stats
}

func NewCache() *Cache {
	return &Cache{snapshots: make(map[string]model.CatalogSnapshot)}
}

// Get returns the cached snapshot for deviceID.
func (c *Cache) Get(deviceID string) (model.CatalogSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snapshots[deviceID]
	if !ok {
		c.stats.Misses++
		metrics.IncCatalogCacheLookup("miss")
		return model.CatalogSnapshot{}, false
	}
	c.stats.Hits++
	metrics.IncCatalogCacheLookup("hit")
	snap.Entries = append([]model.Recording(nil), snap.Entries...)
	return snap, true
}

// Put stores a fresh, consistent snapshot.
func (c *Cache) Put(deviceID string, snap model.CatalogSnapshot) error {
	if snap.Origin == model.OriginPartial || !snap.Consistent() {
		return ErrInconsistentSnapshot
	}
	snap.DeviceID = deviceID
	snap.Entries = append([]model.Recording(nil), snap.Entries...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[deviceID] = snap
	c.stats.Puts++
	return nil
}

// ShouldRefetch reports whether the listing must be fetched again: on
// force, when nothing is cached, or when the device reports a different
// file count than the cached snapshot.
func (c *Cache) ShouldRefetch(deviceID string, reportedTotalCount int, force bool) bool {
	if force {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[deviceID]
	return !ok || snap.TotalCount != reportedTotalCount
}

// Invalidate drops the snapshot for deviceID and returns what was dropped.
// No partial merge with a later fetch ever happens.
func (c *Cache) Invalidate(deviceID string) (model.CatalogSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[deviceID]
	if ok {
		delete(c.snapshots, deviceID)
		c.stats.Invalidations++
		metrics.IncCatalogCacheLookup("invalidated")
	}
	return snap, ok
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Devices = len(c.snapshots)
	return s
}
