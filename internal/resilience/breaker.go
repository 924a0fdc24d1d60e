// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience guards device commands against a flapping or
// unreachable recorder.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/recsync/internal/metrics"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker opens after threshold consecutive counted failures and lets one
// probe through once resetTimeout has elapsed.
type Breaker struct {
	mu           sync.Mutex
	name         string
	state        State
	failures     int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
	clock        clock
	counts       func(error) bool
}

type Option func(*Breaker)

func WithClock(c clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// WithFailureFilter restricts which errors count toward tripping. Errors
// rejected by fn pass through without touching the breaker state.
func WithFailureFilter(fn func(error) bool) Option {
	return func(b *Breaker) { b.counts = fn }
}

func NewBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	b := &Breaker{
		name:         name,
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        realClock{},
		counts:       func(err error) bool { return err != nil },
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.SetCircuitBreakerState(b.name, string(b.state))
	return b
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock.Now().Sub(b.openedAt) < b.resetTimeout {
			return false
		}
		b.transitionTo(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.state == StateHalfOpen
	b.probing = false

	if err == nil || !b.counts(err) {
		b.failures = 0
		b.transitionTo(StateClosed)
		return
	}

	b.failures++
	switch {
	case wasProbe:
		metrics.RecordCircuitBreakerTrip(b.name, "half_open_failure")
		b.transitionTo(StateOpen)
	case b.state == StateClosed && b.failures >= b.threshold:
		metrics.RecordCircuitBreakerTrip(b.name, "threshold_exceeded")
		b.transitionTo(StateOpen)
	}
}

// Caller must hold lock.
func (b *Breaker) transitionTo(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if s == StateOpen {
		b.openedAt = b.clock.Now()
	}
	metrics.SetCircuitBreakerState(b.name, string(s))
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed, e.g. after the device re-attaches.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.transitionTo(StateClosed)
}
