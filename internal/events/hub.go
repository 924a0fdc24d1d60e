// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

const dropLogEvery = 100

// Hub fans events out to bounded subscriber channels.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool

	dropped atomic.Uint64
	now     func() time.Time
}

// NewHub returns a hub whose subscribers get buffer-sized channels.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer, now: time.Now}
}

// Publish delivers ev to every subscriber with room in its buffer and
// reports whether all of them received it.
func (h *Hub) Publish(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false
	}

	delivered := true
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			delivered = false
			sub.dropped.Add(1)
			metrics.IncBusDropReason(string(ev.Type), "buffer_full")
			if n := h.dropped.Add(1); n%dropLogEvery == 1 {
				log.L().Warn().
					Str(log.FieldEvent, string(ev.Type)).
					Uint64("dropped", n).
					Msg("event subscriber is slow, dropping events")
			}
		}
	}
	return delivered
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{hub: h, ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the total number of undelivered events.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close closes every subscription channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.closed = true
		close(sub.ch)
	}
	h.subs = nil
}

// Subscription is one observer's bounded queue.
type Subscription struct {
	hub     *Hub
	ch      chan Event
	closed  bool
	dropped atomic.Uint64
}

// C returns the event channel; it is closed by Close or Hub.Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.hub.subs, s)
	close(s.ch)
}
