// Package ack correlates numbered acknowledgement replies with the callbacks
// waiting for them.
package ack

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/tsarna/sioclient/pkg/sioclient"
	"go.uber.org/zap"
)

// Callback receives the acknowledgement payload. An empty payload means the
// ack timed out or the registry was cleared.
type Callback func(data []sioclient.Data)

// Expirer is invoked from the timer goroutine when an entry's timeout elapses.
// It must eventually call Registry.Expire(id), typically after moving onto
// the owner's serialization goroutine.
type Expirer func(id int64)

type entry struct {
	callback Callback
	timer    *clock.Timer
}

// Registry allocates ack ids and owns the pending callbacks. Every entry is
// removed exactly once, through Resolve, Expire or Clear, and its callback is
// invoked exactly once at that moment.
type Registry struct {
	clock   clock.Clock
	logger  *zap.Logger
	expirer Expirer

	current int64 // last allocated id, -1 before the first allocation

	mu      sync.Mutex
	entries map[int64]*entry
}

// NewRegistry creates a registry using the wall clock. Without an expirer,
// timeouts call Expire directly from the timer goroutine.
func NewRegistry() *Registry {
	r := &Registry{
		clock:   clock.New(),
		logger:  zap.NewNop(),
		current: -1,
		entries: make(map[int64]*entry),
	}
	r.expirer = func(id int64) { r.Expire(id) }
	return r
}

// WithClock replaces the time source. Call before registering entries.
func (r *Registry) WithClock(c clock.Clock) *Registry {
	if c != nil {
		r.clock = c
	}
	return r
}

// WithLogger sets the logger.
func (r *Registry) WithLogger(logger *zap.Logger) *Registry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithExpirer routes timer expiry through e.
func (r *Registry) WithExpirer(e Expirer) *Registry {
	if e != nil {
		r.expirer = e
	}
	return r
}

// Allocate returns the next ack id: 0, 1, 2, ... Safe for concurrent use.
func (r *Registry) Allocate() int64 {
	return atomic.AddInt64(&r.current, 1)
}

// Current returns the most recently allocated id, or -1 if none was issued.
func (r *Registry) Current() int64 {
	return atomic.LoadInt64(&r.current)
}

// Register stores callback under id. A positive timeout arms a one-shot timer;
// zero or negative means wait until resolved or cleared.
func (r *Registry) Register(id int64, callback Callback, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return sioclient.NewSequencingError("ack id %d is already pending", id)
	}

	e := &entry{callback: callback}
	if timeout > 0 {
		e.timer = r.clock.AfterFunc(timeout, func() { r.expirer(id) })
	}
	r.entries[id] = e

	r.logger.Debug("Registered ack callback",
		zap.Int64("id", id),
		zap.Duration("timeout", timeout),
	)
	return nil
}

// Resolve removes the entry for id and invokes its callback with data.
// It returns false for unknown ids (stray or duplicate acks).
func (r *Registry) Resolve(id int64, data []sioclient.Data) bool {
	e := r.take(id)
	if e == nil {
		r.logger.Debug("Ignoring ack with no pending callback", zap.Int64("id", id))
		return false
	}

	r.logger.Debug("Resolving ack", zap.Int64("id", id), zap.Int("items", len(data)))
	e.invoke(data)
	return true
}

// Expire times out the entry for id, invoking its callback with an empty
// payload. It returns false if the entry was already resolved.
func (r *Registry) Expire(id int64) bool {
	e := r.take(id)
	if e == nil {
		return false
	}

	r.logger.Debug("Ack timed out", zap.Int64("id", id))
	e.invoke([]sioclient.Data{})
	return true
}

// Clear drops every pending entry, invoking each callback with an empty
// payload in ascending id order. It returns the number of entries cleared.
func (r *Registry) Clear() int {
	r.mu.Lock()
	pending := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		pending = append(pending, id)
	}
	entries := r.entries
	r.entries = make(map[int64]*entry)
	r.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	for _, id := range pending {
		e := entries[id]
		e.stop()
		e.invoke([]sioclient.Data{})
	}

	if len(pending) > 0 {
		r.logger.Debug("Cleared pending acks", zap.Int("count", len(pending)))
	}
	return len(pending)
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Pending reports whether id is waiting for an ack.
func (r *Registry) Pending(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

func (r *Registry) take(id int64) *entry {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	e.stop()
	return e
}

func (e *entry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

func (e *entry) invoke(data []sioclient.Data) {
	if e.callback != nil {
		e.callback(data)
	}
}
