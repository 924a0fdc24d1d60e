// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package devicetest provides an in-memory recorder with fault injection.
package devicetest

import (
	"context"
	"crypto/md5"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/recsync/internal/device"
	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/protocol"
)

// Fake is an in-memory device. It records whether two commands ever ran
// at the same time, which would desynchronise a real half-duplex link.
type Fake struct {
	DeviceID  string
	ChunkSize int
	// ChunkDelay slows transfers so tests can cancel mid-flight.
	ChunkDelay time.Duration

	mu           sync.Mutex
	names        []string
	files        map[string][]byte
	failReads    map[string]int
	failErr      map[string]error
	disconnected bool
	listOverride []byte
	countDelta   int

	inFlight    atomic.Int32
	overlapped  atomic.Bool
	readCalls   atomic.Int32
	listCalls   atomic.Int32
	readStarted chan string
}

// NewFake returns an empty connected device.
func NewFake(id string) *Fake {
	return &Fake{
		DeviceID:  id,
		ChunkSize: 1024,
		files:     make(map[string][]byte),
		failReads: make(map[string]int),
		failErr:   make(map[string]error),
	}
}

// AddFile appends a recording with the given content.
func (f *Fake) AddFile(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[name]; !ok {
		f.names = append(f.names, name)
	}
	f.files[name] = data
}

// AddSizedFile appends a recording of n deterministic bytes.
func (f *Fake) AddSizedFile(name string, n int) {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	f.AddFile(name, data)
}

// FailReads makes the next n reads of name fail with err (a transient
// timeout when err is nil).
func (f *Fake) FailReads(name string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = device.Transient("read", device.ErrTimeout)
	}
	f.failReads[name] = n
	f.failErr[name] = err
}

// SetDisconnected toggles the attach state.
func (f *Fake) SetDisconnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = v
}

// SetListOverride makes ListFiles return buf verbatim (nil restores).
func (f *Fake) SetListOverride(buf []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOverride = buf
}

// SetCountDelta skews FileCount by delta.
func (f *Fake) SetCountDelta(delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countDelta = delta
}

// NotifyReadStart makes every ReadFile send its filename on the returned channel.
func (f *Fake) NotifyReadStart() <-chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readStarted = make(chan string, 64)
	return f.readStarted
}

// Overlapped reports whether two commands ever ran concurrently.
func (f *Fake) Overlapped() bool { return f.overlapped.Load() }

// ReadCalls returns the number of ReadFile invocations.
func (f *Fake) ReadCalls() int { return int(f.readCalls.Load()) }

// ListCalls returns the number of ListFiles invocations.
func (f *Fake) ListCalls() int { return int(f.listCalls.Load()) }

// Recordings returns the catalog entries with decoder-derived fields.
func (f *Fake) Recordings() []model.Recording {
	buf, _ := f.catalog()
	recs, _ := protocol.Decode(buf)
	return recs
}

func (f *Fake) enter() func() {
	if f.inFlight.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *Fake) ID() string { return f.DeviceID }

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disconnected {
		return device.Transient("ping", device.ErrDisconnected)
	}
	return ctx.Err()
}

func (f *Fake) FileCount(ctx context.Context) (int, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disconnected {
		return 0, device.Transient("count", device.ErrDisconnected)
	}
	return len(f.names) + f.countDelta, ctx.Err()
}

func (f *Fake) catalog() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listOverride != nil {
		return f.listOverride, nil
	}
	recs := make([]model.Recording, 0, len(f.names))
	for _, name := range f.names {
		data := f.files[name]
		sum := md5.Sum(data)
		recs = append(recs, model.Recording{
			Filename:    name,
			FileVersion: 1,
			SizeBytes:   int64(len(data)),
			Signature:   fmt.Sprintf("%x", sum[:]),
		})
	}
	return protocol.Encode(recs)
}

func (f *Fake) ListFiles(ctx context.Context) ([]byte, error) {
	defer f.enter()()
	f.listCalls.Add(1)
	f.mu.Lock()
	disconnected := f.disconnected
	f.mu.Unlock()
	if disconnected {
		return nil, device.Transient("list", device.ErrDisconnected)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.catalog()
}

func (f *Fake) ReadFile(ctx context.Context, filename string, size int64, sink func(chunk []byte) error) error {
	defer f.enter()()
	f.readCalls.Add(1)

	f.mu.Lock()
	if f.readStarted != nil {
		select {
		case f.readStarted <- filename:
		default:
		}
	}
	if f.disconnected {
		f.mu.Unlock()
		return device.Transient("read", device.ErrDisconnected)
	}
	data, ok := f.files[filename]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", device.ErrNotFound, filename)
	}
	if n := f.failReads[filename]; n > 0 {
		f.failReads[filename] = n - 1
		err := f.failErr[filename]
		f.mu.Unlock()
		// Deliver part of the file first, like a link that drops mid-transfer.
		if half := len(data) / 2; half > 0 {
			_ = sink(data[:half])
		}
		return err
	}
	chunk := f.ChunkSize
	delay := f.ChunkDelay
	f.mu.Unlock()

	if chunk <= 0 {
		chunk = 1024
	}
	for off := 0; off < len(data); off += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		if err := sink(data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

var _ device.Transport = (*Fake)(nil)
