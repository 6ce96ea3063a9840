// File: futurepool.go
package activebody

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// FuturePool owns the awaited futures of one body and matches incoming
// replies to them. It also keeps the automatic continuations: destinations
// an awaited future was sent to, which must receive the value once it is
// known.
//
// Every method is safe for concurrent use.
type FuturePool struct {
	owner UniqueID

	mu            sync.Mutex
	futures       map[FutureID][]*Future
	early         map[FutureID]Result
	continuations map[FutureID][]Receiver
	drained       []func()

	// settled remembers the outcome of the last futures resolved here, so
	// that late copies get it and repeated values are dropped.
	settled      map[FutureID]Result
	settledOrder []FutureID

	acsEnabled atomic.Bool
	pendingACs atomic.Int64

	acMu      sync.Mutex
	acQueue   []acForward
	acRunning bool
}

// settledCapacity bounds how many settled outcomes a pool remembers.
const settledCapacity = 1024

type acForward struct {
	dest  Receiver
	reply *Reply
}

// NewFuturePool returns an empty pool with automatic continuations enabled.
func NewFuturePool(owner UniqueID) *FuturePool {
	p := &FuturePool{
		owner:         owner,
		futures:       make(map[FutureID][]*Future),
		early:         make(map[FutureID]Result),
		continuations: make(map[FutureID][]Receiver),
		settled:       make(map[FutureID]Result),
	}
	p.acsEnabled.Store(true)
	return p
}

func (p *FuturePool) Owner() UniqueID { return p.owner }

// register tracks a future created for an outgoing call.
func (p *FuturePool) register(f *Future) {
	p.mu.Lock()
	p.futures[f.id] = append(p.futures[f.id], f)
	p.mu.Unlock()
}

// unregister forgets a future whose request could not be delivered.
func (p *FuturePool) unregister(f *Future) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.futures[f.id]
	for i, g := range list {
		if g == f {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.futures, f.id)
	} else {
		p.futures[f.id] = list
	}
}

// ReceiveFuture registers a future that arrived inside a message. If its
// value already came in, the future is resolved on the spot. Resolved
// futures need no tracking and are ignored.
func (p *FuturePool) ReceiveFuture(f *Future) {
	if !f.IsAwaited() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.settled[f.id]; ok {
		f.resolve(r)
		return
	}
	if r, ok := p.early[f.id]; ok {
		delete(p.early, f.id)
		p.settleLocked(f.id, r)
		f.resolve(r)
		return
	}
	p.futures[f.id] = append(p.futures[f.id], f)
}

// settleLocked records the outcome of id, forgetting the oldest outcome
// beyond settledCapacity.
func (p *FuturePool) settleLocked(id FutureID, r Result) {
	if _, ok := p.settled[id]; ok {
		return
	}
	p.settled[id] = r
	p.settledOrder = append(p.settledOrder, id)
	if len(p.settledOrder) > settledCapacity {
		delete(p.settled, p.settledOrder[0])
		p.settledOrder[0] = FutureID{}
		p.settledOrder = p.settledOrder[1:]
	}
}

// ReceiveFutureValue resolves every future tracked under id and forwards
// the value to the continuation destinations of id. A value nobody waits
// for yet is parked until ReceiveFuture. A value for an id already settled
// is dropped.
func (p *FuturePool) ReceiveFutureValue(id FutureID, r Result) {
	p.mu.Lock()
	if _, done := p.settled[id]; done {
		p.mu.Unlock()
		return
	}
	list, known := p.futures[id]
	delete(p.futures, id)
	dests := p.continuations[id]
	delete(p.continuations, id)
	for _, f := range list {
		f.resolve(r)
	}
	if !known && len(dests) == 0 {
		p.early[id] = r
	} else {
		p.settleLocked(id, r)
	}
	p.mu.Unlock()

	if len(dests) > 0 {
		p.forward(id, r, dests)
	}
}

// AddAutomaticContinuation records that f was sent to dest while awaited,
// so that dest receives the value when it arrives. When f is already
// resolved nothing is recorded and its result is returned with true; the
// caller then sends the value instead of the future. A destination is
// recorded once per future.
func (p *FuturePool) AddAutomaticContinuation(f *Future, dest Receiver) (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := f.Resolved(); ok {
		return r, true
	}
	if !p.acsEnabled.Load() {
		// Without continuations the destination can only get the value if
		// it asks for it; send the future anyway.
		return Result{}, false
	}
	if _, tracked := p.futures[f.id]; !tracked {
		p.futures[f.id] = append(p.futures[f.id], f)
	}
	for _, d := range p.continuations[f.id] {
		if d.ID() == dest.ID() {
			return Result{}, false
		}
	}
	p.continuations[f.id] = append(p.continuations[f.id], dest)
	p.pendingACs.Inc()
	return Result{}, false
}

func (p *FuturePool) forward(id FutureID, r Result, dests []Receiver) {
	p.acMu.Lock()
	for _, d := range dests {
		p.acQueue = append(p.acQueue, acForward{
			dest:  d,
			reply: &Reply{Sender: p.owner, Future: id, Result: r},
		})
	}
	start := !p.acRunning
	p.acRunning = true
	p.acMu.Unlock()
	if start {
		go p.runContinuations()
	}
}

// runContinuations drains the continuation queue on one goroutine so that
// forwards leave in the order the values arrived.
func (p *FuturePool) runContinuations() {
	for {
		p.acMu.Lock()
		if len(p.acQueue) == 0 {
			p.acRunning = false
			p.acMu.Unlock()
			return
		}
		next := p.acQueue[0]
		p.acQueue[0] = acForward{}
		p.acQueue = p.acQueue[1:]
		p.acMu.Unlock()

		if err := next.dest.ReceiveReply(next.reply); err != nil {
			log.Warning("automatic continuation failed", "future", next.reply.Future.String(), "destination", next.dest.ID().String(), "error", err)
		}
		p.acDone(1)
	}
}

func (p *FuturePool) acDone(n int64) {
	if p.pendingACs.Sub(n) > 0 {
		return
	}
	p.mu.Lock()
	fns := p.drained
	p.drained = nil
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *FuturePool) EnableACs() { p.acsEnabled.Store(true) }

// DisableACs stops recording continuations. Those already recorded are
// still forwarded.
func (p *FuturePool) DisableACs() { p.acsEnabled.Store(false) }

func (p *FuturePool) ACsEnabled() bool { return p.acsEnabled.Load() }

// PendingACs counts continuations recorded or queued but not yet delivered.
func (p *FuturePool) PendingACs() int { return int(p.pendingACs.Load()) }

func (p *FuturePool) HasPendingACs() bool { return p.pendingACs.Load() > 0 }

// OnDrained runs fn once no continuation is pending, immediately if none is.
func (p *FuturePool) OnDrained(fn func()) {
	p.mu.Lock()
	if p.pendingACs.Load() > 0 {
		p.drained = append(p.drained, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

// WaitACs blocks until every pending continuation has been delivered.
func (p *FuturePool) WaitACs(ctx context.Context) error {
	done := make(chan struct{})
	p.OnDrained(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of awaited futures.
func (p *FuturePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, list := range p.futures {
		n += len(list)
	}
	return n
}

// Cancel resolves every awaited future with err and drops the
// continuations that can no longer be fed.
func (p *FuturePool) Cancel(err error) {
	p.mu.Lock()
	futures := p.futures
	p.futures = make(map[FutureID][]*Future)
	dropped := 0
	for _, dests := range p.continuations {
		dropped += len(dests)
	}
	p.continuations = make(map[FutureID][]Receiver)
	p.early = make(map[FutureID]Result)
	for id, list := range futures {
		p.settleLocked(id, Result{Err: err})
		for _, f := range list {
			f.resolve(Result{Err: err})
		}
	}
	p.mu.Unlock()
	if dropped > 0 {
		p.acDone(int64(dropped))
	}
}
