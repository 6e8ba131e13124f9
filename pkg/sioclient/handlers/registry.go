// Package handlers maps event names to the callbacks registered for them.
package handlers

import (
	"sync"
	"sync/atomic"

	"github.com/tsarna/sioclient/pkg/sioclient"
)

// ID identifies one registration. IDs are unique per Registry and increase
// monotonically.
type ID uint64

// AckFunc replies to an event that requested an acknowledgement. Handlers
// receive nil when the sender did not ask for one.
type AckFunc func(args ...any) error

// Handler is called with the event arguments (the event name removed).
type Handler func(data []sioclient.Data, ack AckFunc)

// AnyHandler is called for every dispatched event.
type AnyHandler func(event string, data []sioclient.Data)

type entry struct {
	id      ID
	event   string
	handler Handler
	any     AnyHandler
	once    bool
}

// Registry is safe for concurrent use. Handlers run outside the lock, so a
// handler may register or remove handlers; such changes apply to later
// dispatches, never to the one in progress.
type Registry struct {
	nextID uint64

	mu      sync.Mutex
	entries []*entry
	anys    []*entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// On adds a handler for event and returns its ID.
func (r *Registry) On(event string, handler Handler) ID {
	return r.add(&entry{event: event, handler: handler})
}

// Once adds a handler that is removed before its first invocation.
func (r *Registry) Once(event string, handler Handler) ID {
	return r.add(&entry{event: event, handler: handler, once: true})
}

// OnAny adds a catch-all handler that sees every dispatched event after the
// named handlers for it have run.
func (r *Registry) OnAny(handler AnyHandler) ID {
	e := &entry{id: r.newID(), any: handler}

	r.mu.Lock()
	r.anys = append(r.anys, e)
	r.mu.Unlock()

	return e.id
}

func (r *Registry) add(e *entry) ID {
	e.id = r.newID()

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()

	return e.id
}

func (r *Registry) newID() ID {
	return ID(atomic.AddUint64(&r.nextID, 1))
}

// OffEvent removes every handler registered for event and returns how many
// were removed.
func (r *Registry) OffEvent(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0:0]
	removed := 0
	for _, e := range r.entries {
		if e.event == event {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed
}

// Off removes the single registration with the given id, whatever its event.
func (r *Registry) Off(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ok bool
	r.entries, ok = without(r.entries, id)
	if ok {
		return true
	}
	r.anys, ok = without(r.anys, id)
	return ok
}

// OffAll removes every registration.
func (r *Registry) OffAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.anys = nil
}

// Count returns the number of handlers registered for event.
func (r *Registry) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.event == event {
			n++
		}
	}
	return n
}

// Len returns the number of event handlers, catch-all handlers excluded.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dispatch invokes the handlers registered for event, in registration order,
// followed by the catch-all handlers. The handler set is fixed when Dispatch
// starts, and once-handlers are removed before any handler runs. Dispatch
// returns the number of named handlers invoked.
func (r *Registry) Dispatch(event string, data []sioclient.Data, ack AckFunc) int {
	r.mu.Lock()
	var snapshot []*entry
	kept := r.entries[:0:0]
	for _, e := range r.entries {
		if e.event == event {
			snapshot = append(snapshot, e)
			if e.once {
				continue
			}
		}
		kept = append(kept, e)
	}
	r.entries = kept
	anys := append([]*entry(nil), r.anys...)
	r.mu.Unlock()

	for _, e := range snapshot {
		e.handler(data, ack)
	}
	for _, e := range anys {
		e.any(event, data)
	}
	return len(snapshot)
}

func without(entries []*entry, id ID) ([]*entry, bool) {
	for i, e := range entries {
		if e.id == id {
			out := make([]*entry, 0, len(entries)-1)
			out = append(out, entries[:i]...)
			out = append(out, entries[i+1:]...)
			return out, true
		}
	}
	return entries, false
}
