// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/recsync/internal/metrics"
)

// DefaultProgressInterval is the minimum spacing of progress events per
// transfer.
const DefaultProgressInterval = 250 * time.Millisecond

// Progress coalesces byte deltas for one transfer into throttled events.
// Deltas reported between emissions are summed, never lost.
type Progress struct {
	hub      *Hub
	template Event
	limiter  *rate.Limiter

	mu      sync.Mutex
	pending int64
	total   int64
}

// NewProgress starts a coalescer for the transfer described by template
// (SessionID, ItemID, Filename, TotalBytes).
func NewProgress(hub *Hub, interval time.Duration, template Event) *Progress {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	template.Type = TypeProgress
	return &Progress{
		hub:      hub,
		template: template,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Add records delta received bytes and emits an event if the interval
// allows.
func (p *Progress) Add(delta int64) {
	if delta <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending += delta
	p.total += delta
	if !p.limiter.Allow() {
		metrics.IncBusDropReason(string(TypeProgress), "coalesced")
		return
	}
	p.emitLocked()
}

// Flush emits any coalesced remainder regardless of the interval.
func (p *Progress) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending > 0 {
		p.emitLocked()
	}
}

// Reset forgets progress, e.g. before a retry restarts the file.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = 0
	p.total = 0
}

// Total returns the cumulative byte count.
func (p *Progress) Total() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *Progress) emitLocked() {
	ev := p.template
	ev.BytesReceived = p.pending
	ev.ProgressBytes = p.total
	p.pending = 0
	if p.hub != nil {
		p.hub.Publish(ev)
	}
}
