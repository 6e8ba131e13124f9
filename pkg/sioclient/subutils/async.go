package subutils

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/client"
)

var (
	ErrQueueFull     = errors.New("handler queue is full")
	ErrHandlerClosed = errors.New("handler is closed")
)

type asyncEvent struct {
	event string
	data  []sioclient.Data
}

// AsyncQueueingHandler moves event handling off the client's loop
// goroutine. Events are queued on a buffered channel and delivered to the
// wrapped handler from a background goroutine; when the queue is full the
// event is dropped and counted.
type AsyncQueueingHandler struct {
	wrapped   client.AnyHandler
	queue     chan asyncEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewAsyncQueueingHandler creates a handler with the given queue size.
// Call Start before registering it and Close when finished.
//
// Example:
//
//	async := subutils.NewAsyncQueueingHandler(printEvent, 100).Start()
//	defer async.Close()
//	c.OnAny(async.Handle)
func NewAsyncQueueingHandler(wrapped client.AnyHandler, queueSize int) *AsyncQueueingHandler {
	if queueSize <= 0 {
		queueSize = 100
	}

	return &AsyncQueueingHandler{
		wrapped: wrapped,
		queue:   make(chan asyncEvent, queueSize),
		done:    make(chan struct{}),
	}
}

// Start begins processing queued events in a background goroutine.
func (a *AsyncQueueingHandler) Start() *AsyncQueueingHandler {
	a.wg.Add(1)
	go a.processQueue()
	return a
}

func (a *AsyncQueueingHandler) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case ev := <-a.queue:
			a.wrapped(ev.event, ev.data)
		case <-a.done:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncQueueingHandler) drainQueue() {
	for {
		select {
		case ev := <-a.queue:
			a.wrapped(ev.event, ev.data)
		default:
			return
		}
	}
}

// Handle queues the event and returns immediately.
func (a *AsyncQueueingHandler) Handle(event string, data []sioclient.Data) {
	if err := a.Enqueue(event, data); err != nil {
		a.dropped.Add(1)
	}
}

// Enqueue queues the event, reporting a full queue or a closed handler.
func (a *AsyncQueueingHandler) Enqueue(event string, data []sioclient.Data) error {
	if a.IsClosed() {
		return ErrHandlerClosed
	}

	select {
	case a.queue <- asyncEvent{event: event, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the background goroutine after delivering every queued event.
func (a *AsyncQueueingHandler) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

// Dropped returns how many events were discarded.
func (a *AsyncQueueingHandler) Dropped() int64 {
	return a.dropped.Load()
}

func (a *AsyncQueueingHandler) QueueSize() int {
	return len(a.queue)
}

func (a *AsyncQueueingHandler) QueueCapacity() int {
	return cap(a.queue)
}

func (a *AsyncQueueingHandler) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
