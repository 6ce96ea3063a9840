// File: immediate.go
package activebody

import (
	"context"

	"github.com/pkg/errors"
)

// SetImmediateService makes requests for method bypass the queue. They run
// on the delivering goroutine, concurrently with the serving goroutine, or
// in arrival order on one dedicated goroutine when uniqueGoroutine is set.
// The target must synchronize whatever such methods share with queued ones.
func (b *Body) SetImmediateService(method string, uniqueGoroutine bool) {
	if uniqueGoroutine {
		b.uniqueMethods.Add(method)
	} else {
		b.uniqueMethods.Remove(method)
	}
	b.immediate.Add(method)
}

// RemoveImmediateService sends requests for method through the queue again.
func (b *Body) RemoveImmediateService(method string) {
	b.immediate.Remove(method)
	b.uniqueMethods.Remove(method)
}

func (b *Body) IsImmediateService(method string) bool {
	return b.immediate.Contains(method)
}

func (b *Body) serveImmediately(req *Request) error {
	if b.uniqueMethods.Contains(req.Call.Name) {
		return b.submitUnique(req)
	}
	if err := b.serveRequest(req, false); err != nil {
		log.Warning("immediate service failed", "body", b.id.String(), "method", req.Call.Name, "error", err)
	}
	return nil
}

func (b *Body) submitUnique(req *Request) error {
	b.uniqueMu.Lock()
	if b.workersClosed {
		b.uniqueMu.Unlock()
		return errors.Wrapf(ErrInactiveBody, "request %s for %s", req.Call.Name, b.id)
	}
	q, ok := b.workers[req.Call.Name]
	if !ok {
		q = NewRequestQueue(b.id, nil)
		b.workers[req.Call.Name] = q
		go b.runUnique(q)
	}
	b.uniqueMu.Unlock()
	return q.Add(req)
}

func (b *Body) runUnique(q *RequestQueue) {
	for {
		req, err := q.BlockingRemoveOldest(context.Background())
		if err != nil {
			return
		}
		if err := b.serveRequest(req, false); err != nil {
			log.Warning("immediate service failed", "body", b.id.String(), "method", req.Call.Name, "error", err)
		}
	}
}

func (b *Body) stopImmediateWorkers() {
	b.uniqueMu.Lock()
	b.workersClosed = true
	workers := b.workers
	b.workers = make(map[string]*RequestQueue)
	b.uniqueMu.Unlock()
	for _, q := range workers {
		b.replyTerminated(q.Destroy(), nil)
	}
}
