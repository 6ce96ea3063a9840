// File: queue.go
package activebody

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// RequestFilter selects requests; a nil filter accepts every request.
type RequestFilter func(*Request) bool

// Policy decides which pending request is served next.
type Policy interface {
	// Select returns the index in pending of the next request, or -1.
	// pending is ordered by arrival.
	Select(pending []*Request) int
}

// FIFO serves requests in arrival order. It is the default policy.
type FIFO struct{}

func (FIFO) Select(pending []*Request) int {
	if len(pending) == 0 {
		return -1
	}
	return 0
}

type priorityPolicy struct {
	methods mapset.Set[string]
}

// PriorityPolicy serves the oldest request for one of methods first and
// falls back to arrival order.
func PriorityPolicy(methods ...string) Policy {
	return priorityPolicy{methods: mapset.NewSet(methods...)}
}

func (p priorityPolicy) Select(pending []*Request) int {
	for i, r := range pending {
		if p.methods.Contains(r.Call.Name) {
			return i
		}
	}
	return FIFO{}.Select(pending)
}

// RequestQueue holds the pending requests of one body. Any number of
// goroutines may Add; one goroutine, the body's serving goroutine, removes.
type RequestQueue struct {
	owner  UniqueID
	policy Policy

	mu        sync.Mutex
	requests  []*Request
	destroyed bool

	notify chan struct{}
	done   chan struct{}
}

// NewRequestQueue returns an empty queue ordered by policy (FIFO if nil).
func NewRequestQueue(owner UniqueID, policy Policy) *RequestQueue {
	if policy == nil {
		policy = FIFO{}
	}
	return &RequestQueue{
		owner:  owner,
		policy: policy,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Add appends req. It fails with ErrInactiveBody once the queue is
// destroyed.
func (q *RequestQueue) Add(req *Request) error {
	return q.add(req, nil)
}

// add appends req and runs accepted, if not nil, before any consumer can
// take req. accepted must not block.
func (q *RequestQueue) add(req *Request, accepted func()) error {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return ErrInactiveBody
	}
	q.requests = append(q.requests, req)
	if accepted != nil {
		accepted()
	}
	q.mu.Unlock()

	// Non-blocking: one pending signal is enough to wake the consumer.
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *RequestQueue) takeLocked(filter RequestFilter) *Request {
	idx := -1
	if filter == nil {
		idx = q.policy.Select(q.requests)
	} else {
		for i, r := range q.requests {
			if filter(r) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return nil
	}
	req := q.requests[idx]
	copy(q.requests[idx:], q.requests[idx+1:])
	q.requests[len(q.requests)-1] = nil
	q.requests = q.requests[:len(q.requests)-1]
	return req
}

// RemoveOldest removes the oldest request accepted by filter, or the one
// the policy picks when filter is nil. It returns nil when none qualifies.
func (q *RequestQueue) RemoveOldest(filter RequestFilter) (*Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return nil, ErrInactiveBody
	}
	return q.takeLocked(filter), nil
}

// BlockingRemove waits for a request accepted by filter.
func (q *RequestQueue) BlockingRemove(ctx context.Context, filter RequestFilter) (*Request, error) {
	for {
		req, err := q.RemoveOldest(filter)
		if err != nil {
			return nil, err
		}
		if req != nil {
			return req, nil
		}
		select {
		case <-q.notify:
		case <-q.done:
			return nil, ErrInactiveBody
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// BlockingRemoveOldest waits for the next request the policy picks.
func (q *RequestQueue) BlockingRemoveOldest(ctx context.Context) (*Request, error) {
	return q.BlockingRemove(ctx, nil)
}

func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

func (q *RequestQueue) IsEmpty() bool { return q.Len() == 0 }

// Snapshot returns the pending requests in arrival order.
func (q *RequestQueue) Snapshot() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Request, len(q.requests))
	copy(out, q.requests)
	return out
}

// HasRequest reports whether a request for method is pending.
func (q *RequestQueue) HasRequest(method string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.requests {
		if r.Call.Name == method {
			return true
		}
	}
	return false
}

// Destroy refuses further use of the queue and returns what was left in it.
// Blocked consumers wake with ErrInactiveBody. Destroying twice returns nil
// the second time.
func (q *RequestQueue) Destroy() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return nil
	}
	q.destroyed = true
	left := q.requests
	q.requests = nil
	close(q.done)
	return left
}

func (q *RequestQueue) IsDestroyed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.destroyed
}
