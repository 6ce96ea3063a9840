// File: hooks.go
package activebody

import (
	"runtime/debug"
	"sync"

	"go.uber.org/atomic"
)

// notifier delivers events to listeners on its own goroutine. Notifications
// are best effort: when the buffer is full the event is dropped, and a
// panicking listener is logged and skipped. Nothing here can fail a request.
type notifier struct {
	listeners []Listener
	events    chan Event
	dropped   atomic.Int64
	closed    atomic.Bool
	mu        sync.RWMutex
	done      chan struct{}
}

func newNotifier(buffer int, listeners []Listener) *notifier {
	n := &notifier{
		listeners: listeners,
		events:    make(chan Event, buffer),
		done:      make(chan struct{}),
	}
	if len(listeners) == 0 {
		close(n.done)
		return n
	}
	go n.run()
	return n
}

func (n *notifier) notify(e Event) {
	if len(n.listeners) == 0 {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed.Load() {
		return
	}
	select {
	case n.events <- e:
	default:
		n.dropped.Inc()
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for e := range n.events {
		for _, l := range n.listeners {
			n.deliver(l, e)
		}
	}
}

func (n *notifier) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("listener panicked", "event", e.Kind.String(), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	l.HandleEvent(e)
}

// Dropped returns how many events were lost to a full buffer.
func (n *notifier) Dropped() int64 { return n.dropped.Load() }

// close stops accepting events and waits until the buffered ones are
// delivered.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed.Swap(true) {
		n.mu.Unlock()
		return
	}
	if len(n.listeners) > 0 {
		close(n.events)
	}
	n.mu.Unlock()
	<-n.done
}
