// File: migrate.go
package activebody

import (
	"github.com/petermattis/goid"
	"github.com/pkg/errors"
)

// MigrateTo moves the body to dst and returns its new incarnation, which
// keeps the id, the target object, the pending requests and the future
// pool. The serving loop is stopped at a request boundary, then deliverers
// are held at the gate until the new body runs and forwarded to it: the
// source runtime keeps a Forwarder under the body's id.
//
// A body cannot be migrated from its own serving goroutine.
func (b *Body) MigrateTo(dst *Runtime) (*Body, error) {
	if dst == nil {
		return nil, errors.New("destination runtime cannot be nil")
	}
	if dst == b.rt {
		return b, nil
	}
	if goid.Get() == b.goroutine.Load() {
		return nil, ErrSelfMigration
	}
	if dst.IsStopping() {
		return nil, errors.Wrap(ErrRuntimeStopping, "cannot migrate into the destination")
	}
	if !b.IsActive() {
		return nil, errors.Wrapf(ErrInactiveBody, "cannot migrate %s", b.id)
	}
	if !b.migrating.CompareAndSwap(false, true) {
		return nil, errors.Errorf("%s is already migrating", b.id)
	}
	<-b.ready

	// Stop the loop before closing the gate: the service in progress may
	// still wait for replies.
	b.loopCancel()
	<-b.loopDone
	b.gate.Close()

	if !b.state.CompareAndSwap(int32(StateActive), int32(StateTerminated)) {
		// Terminated while the loop was stopping.
		b.migrating.Store(false)
		b.gate.Open()
		return nil, errors.Wrapf(ErrInactiveBody, "cannot migrate %s", b.id)
	}

	b.mu.Lock()
	left := b.queue.Destroy()
	b.mu.Unlock()

	b.uniqueMu.Lock()
	b.workersClosed = true
	workers := b.workers
	b.workers = make(map[string]*RequestQueue)
	b.uniqueMu.Unlock()
	var immediateLeft []*Request
	for _, q := range workers {
		immediateLeft = append(immediateLeft, q.Destroy()...)
	}

	nb := b.adoptInto(dst)
	for _, req := range left {
		if err := nb.queue.Add(req); err != nil {
			log.Error("request lost in migration", "body", b.id.String(), "method", req.Call.Name, "error", err)
		}
	}
	go nb.run(true)
	<-nb.started

	fwd := NewForwarder(b.id, nb)
	b.mu.Lock()
	b.forwardTo = nb
	b.beh = inactiveBehavior{body: b}
	b.mu.Unlock()
	b.rt.registry.RegisterForwarder(b.id, fwd)
	b.rt.locations.Update(b.id, nb)
	dst.locations.Update(b.id, nb)
	b.doneOnce.Do(func() { close(b.done) })
	b.gate.Open()

	for _, req := range immediateLeft {
		if err := nb.ReceiveRequest(req); err != nil {
			log.Error("request lost in migration", "body", b.id.String(), "method", req.Call.Name, "error", err)
		}
	}
	log.Info("body migrated", "body", b.id.String(), "requests", len(left)+len(immediateLeft))
	return nb, nil
}

// adoptInto builds the body that continues b in dst. Its object is already
// initialized, so it starts without running the producer.
func (b *Body) adoptInto(dst *Runtime) *Body {
	nb := newBody(dst, b.id, b.props)
	nb.target = b.target
	close(nb.ready)
	nb.seq = b.seq
	nb.pool = b.pool
	nb.immediate = b.immediate.Clone()
	nb.uniqueMethods = b.uniqueMethods.Clone()
	nb.beh = activeBehavior{body: nb, queue: nb.queue, pool: nb.pool}
	return nb
}
