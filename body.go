// File: body.go
package activebody

import (
	"context"
	"runtime/debug"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// BodyState is the lifecycle state of a body.
type BodyState int32

const (
	StateConstructing BodyState = iota
	StateActive
	// StateDraining: terminated, but the future pool stays alive until its
	// pending automatic continuations are delivered.
	StateDraining
	StateTerminated
)

func (s BodyState) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Initializer is implemented by targets that need a one-time setup on the
// serving goroutine before the first request is served. An error terminates
// the body.
type Initializer interface {
	InitActivity(b *Body) error
}

// Runner is implemented by targets that replace the default FIFO serving
// loop. RunActivity must return when ctx is done.
type Runner interface {
	RunActivity(ctx context.Context, b *Body) error
}

// Ender is implemented by targets that want a last call on the serving
// goroutine after their activity ended.
type Ender interface {
	EndActivity(b *Body)
}

// LocalBody is a body living in this runtime: an active Body or a HalfBody.
type LocalBody interface {
	Receiver
	FuturePool() (*FuturePool, error)
	IsActive() bool
	nextSeq() uint64
	currentBehavior() behavior
}

// Body is the runtime side of one active object: its identity, queue,
// future pool, target object and lifecycle. One goroutine at a time serves
// its requests; any number of goroutines may deliver to it.
type Body struct {
	rt     *Runtime
	id     UniqueID
	props  *Props
	target any
	seq    *sequencer
	gate   *ThreadGate

	mu        sync.Mutex
	beh       behavior
	queue     *RequestQueue
	pool      *FuturePool
	remaining []*Request
	forwardTo Receiver

	state     atomic.Int32
	serving   atomic.Bool
	migrating atomic.Bool
	goroutine atomic.Int64

	immediate     mapset.Set[string]
	uniqueMethods mapset.Set[string]
	uniqueMu      sync.Mutex
	workers       map[string]*RequestQueue
	workersClosed bool

	serviceMu     sync.Mutex
	serviceCancel context.CancelFunc

	loopCtx    context.Context
	loopCancel context.CancelFunc

	started  chan struct{}
	ready    chan struct{}
	loopDone chan struct{}
	done     chan struct{}

	startOnce sync.Once
	doneOnce  sync.Once
}

func newBody(rt *Runtime, id UniqueID, props *Props) *Body {
	b := &Body{
		rt:            rt,
		id:            id,
		props:         props,
		seq:           newSequencer(id),
		gate:          NewThreadGate(),
		queue:         NewRequestQueue(id, props.policy),
		pool:          NewFuturePool(id),
		immediate:     mapset.NewSet(TerminateImmediatelyMethod),
		uniqueMethods: mapset.NewSet[string](),
		workers:       make(map[string]*RequestQueue),
		started:       make(chan struct{}),
		ready:         make(chan struct{}),
		loopDone:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	b.loopCtx, b.loopCancel = context.WithCancel(context.Background())
	if props.noACs {
		b.pool.DisableACs()
	}
	for method, unique := range props.immediate {
		b.SetImmediateService(method, unique)
	}
	b.beh = activeBehavior{body: b, queue: b.queue, pool: b.pool}
	return b
}

func (b *Body) ID() UniqueID      { return b.id }
func (b *Body) Name() string      { return b.id.Name }
func (b *Body) Runtime() *Runtime { return b.rt }
func (b *Body) State() BodyState  { return BodyState(b.state.Load()) }
func (b *Body) IsActive() bool    { return b.State() <= StateActive }
func (b *Body) Gate() *ThreadGate { return b.gate }
func (b *Body) nextSeq() uint64   { return b.seq.next() }

// Done is closed once the body is terminated for good.
func (b *Body) Done() <-chan struct{} { return b.done }

// Target returns the reified object once it has been produced.
func (b *Body) Target() any {
	select {
	case <-b.ready:
		return b.target
	default:
		return nil
	}
}

func (b *Body) currentBehavior() behavior {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.beh
}

// Queue returns the request queue while the body is active.
func (b *Body) Queue() (*RequestQueue, error) {
	return b.currentBehavior().requestQueue()
}

// FuturePool returns the future pool while the body is active or draining.
func (b *Body) FuturePool() (*FuturePool, error) {
	return b.currentBehavior().futurePool()
}

// RemainingRequests returns the requests that were still queued when the
// body terminated.
func (b *Body) RemainingRequests() []*Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Request, len(b.remaining))
	copy(out, b.remaining)
	return out
}

func (b *Body) forwarder() Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.forwardTo
}

// run is the serving goroutine of the body.
func (b *Body) run(skipInit bool) {
	b.goroutine.Store(goid.Get())
	pop := b.rt.contexts.push(ExecutionContext{Body: b})
	defer close(b.loopDone)
	defer pop()

	if !b.state.CompareAndSwap(int32(StateConstructing), int32(StateActive)) {
		// Terminated before it could start.
		b.startOnce.Do(func() { close(b.started) })
		return
	}
	b.rt.registry.Register(b)
	b.startOnce.Do(func() { close(b.started) })
	b.rt.hooks.notify(bodyEvent(BodyCreated, b.id))

	if !skipInit {
		if err := b.initialize(); err != nil {
			log.Error("body initialization failed", "body", b.id.String(), "error", err)
			b.terminate(false, err)
			return
		}
	}

	err := b.runActivity()
	if b.migrating.Load() {
		return
	}
	if err != nil {
		log.Error("body activity failed", "body", b.id.String(), "error", err)
	}
	b.endActivity()
	b.terminate(false, err)
}

func (b *Body) initialize() (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("body panicked during initialization", "body", b.id.String(), "panic", r, "stack", string(debug.Stack()))
			err = errors.Errorf("panic during initialization: %v", r)
		}
		if err != nil {
			b.target = nil
		}
		close(b.ready)
	}()

	target := b.props.Produce()
	if target == nil {
		return errors.New("producer returned a nil target")
	}
	b.target = target
	if init, ok := target.(Initializer); ok {
		if err := init.InitActivity(b); err != nil {
			return errors.Wrap(err, "InitActivity")
		}
	}
	return nil
}

func (b *Body) runActivity() (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("body panicked in its activity", "body", b.id.String(), "panic", r, "stack", string(debug.Stack()))
			err = &PanicError{Method: "RunActivity", Value: r}
		}
	}()
	if runner, ok := b.target.(Runner); ok {
		return runner.RunActivity(b.loopCtx, b)
	}
	return b.FIFOLoop(b.loopCtx)
}

func (b *Body) endActivity() {
	ender, ok := b.target.(Ender)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("body panicked in EndActivity", "body", b.id.String(), "panic", r)
		}
	}()
	ender.EndActivity(b)
}

// FIFOLoop serves requests in the order the queue policy gives until the
// body terminates or ctx is done. It is the default activity.
func (b *Body) FIFOLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := b.ServeOldest(ctx, nil); err != nil {
			if errors.Is(err, ErrInactiveBody) || ctx.Err() != nil {
				return nil
			}
			log.Warning("service failed", "body", b.id.String(), "error", err)
		}
	}
	return nil
}

// ServeOldest waits for the oldest request accepted by filter (or the one
// the queue policy picks when filter is nil) and serves it. Only the
// serving goroutine may call it.
func (b *Body) ServeOldest(ctx context.Context, filter RequestFilter) error {
	q, err := b.Queue()
	if err != nil {
		return err
	}
	req, err := q.BlockingRemove(ctx, filter)
	if err != nil {
		return err
	}
	err = b.Serve(req)
	switch {
	case errors.Is(err, ErrInactiveBody):
		// Terminated between removal and service: the caller still gets
		// an answer.
		b.replyTerminated([]*Request{req}, nil)
	case errors.Is(err, ErrAlreadyServing):
		if !req.OneWay {
			b.sendReply(req, Result{Err: errors.Wrapf(ErrAlreadyServing, "%s dequeued %s from within a service", b.id, req.Call.Name)})
		}
	}
	return err
}

// Terminate stops the body. Queued requests are answered with
// ErrBodyTerminated. With completeACs, the future pool keeps forwarding
// pending automatic continuations before the body is final. Terminating
// twice is a no-op.
//
// Called from another goroutine, Terminate interrupts the service in
// progress.
func (b *Body) Terminate(completeACs bool) {
	b.terminate(completeACs, nil)
}

func (b *Body) terminate(completeACs bool, cause error) {
	for {
		s := b.state.Load()
		if BodyState(s) >= StateDraining {
			return
		}
		if b.state.CompareAndSwap(s, int32(StateDraining)) {
			break
		}
	}
	b.startOnce.Do(func() { close(b.started) })

	b.mu.Lock()
	left := b.queue.Destroy()
	b.remaining = append(b.remaining, left...)
	pool := b.pool
	keep := completeACs && pool.HasPendingACs()
	if keep {
		b.beh = inactiveBehavior{body: b, pool: pool}
	} else {
		b.beh = inactiveBehavior{body: b}
	}
	b.mu.Unlock()

	// The queue is gone before the service is interrupted, so the loop
	// cannot pick up another request.
	if goid.Get() != b.goroutine.Load() {
		b.InterruptService()
	}
	b.loopCancel()
	b.stopImmediateWorkers()
	b.rt.hooks.notify(bodyEvent(BodyTerminated, b.id))
	log.Info("body terminated", "body", b.id.String(), "remaining", len(left), "draining", keep)

	b.replyTerminated(left, cause)
	// Unregistered once every caller is answered: leaving the registry may
	// end the process.
	b.rt.registry.Unregister(b)

	if keep {
		pool.OnDrained(func() { b.finalize(pool) })
		return
	}
	b.finalize(pool)
}

// finalize retires the future pool: from now on replies are refused.
func (b *Body) finalize(pool *FuturePool) {
	b.mu.Lock()
	b.beh = inactiveBehavior{body: b}
	b.mu.Unlock()
	b.state.Store(int32(StateTerminated))
	if pool != nil {
		pool.Cancel(ErrBodyTerminated)
	}
	b.doneOnce.Do(func() { close(b.done) })
}

// replyTerminated answers every two-way request in reqs with a failure, on
// a bounded set of goroutines, so no caller waits forever.
func (b *Body) replyTerminated(reqs []*Request, cause error) {
	failure := errors.Wrapf(ErrBodyTerminated, "%s terminated before serving the request", b.id)
	if cause != nil {
		failure = errors.Wrapf(ErrBodyTerminated, "%s terminated: %v", b.id, cause)
	}
	var g errgroup.Group
	g.SetLimit(b.rt.cfg.TerminationWorkers)
	for _, req := range reqs {
		if req.OneWay || req.Sender == nil {
			continue
		}
		req := req
		g.Go(func() error {
			reply := &Reply{Sender: b.id, Future: req.FutureID(), Result: Result{Err: failure}}
			if err := req.Sender.ReceiveReply(reply); err != nil {
				log.Warning("cannot answer pending request", "body", b.id.String(), "method", req.Call.Name, "sender", req.SenderID.String(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// InterruptService cancels the context of the service in progress. It must
// not be called from within that service.
func (b *Body) InterruptService() {
	b.serviceMu.Lock()
	cancel := b.serviceCancel
	b.serviceMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ReceiveRequest delivers req to the body: the request is queued, or served
// at once when its method is an immediate service.
func (b *Body) ReceiveRequest(req *Request) error {
	b.gate.Enter()
	inside := true
	exit := func() {
		if inside {
			inside = false
			b.gate.Exit()
		}
	}
	defer exit()

	if fwd := b.forwarder(); fwd != nil {
		exit()
		return fwd.ReceiveRequest(req)
	}

	beh := b.currentBehavior()
	pool, err := beh.futurePool()
	if err != nil {
		return errors.Wrapf(ErrBodyTerminated, "request %s for %s", req.Call.Name, b.id)
	}
	for _, f := range req.staged {
		pool.ReceiveFuture(f)
	}
	req.staged = nil

	if b.immediate.Contains(req.Call.Name) {
		if !b.IsActive() {
			return errors.Wrapf(ErrInactiveBody, "request %s for %s", req.Call.Name, b.id)
		}
		b.rt.hooks.notify(requestEvent(RequestReceived, b.id, req))
		exit()
		return b.serveImmediately(req)
	}

	q, err := beh.requestQueue()
	if err != nil {
		return errors.Wrapf(err, "request %s for %s", req.Call.Name, b.id)
	}
	// Notified only once queued, and before the serving goroutine can start
	// the service.
	err = q.add(req, func() {
		b.rt.hooks.notify(requestEvent(RequestReceived, b.id, req))
	})
	if err != nil {
		return errors.Wrapf(err, "request %s for %s", req.Call.Name, b.id)
	}
	return nil
}

// ReceiveReply hands a reply to the body's future pool. It is accepted
// after termination as long as the pool is draining.
func (b *Body) ReceiveReply(reply *Reply) error {
	b.gate.Enter()
	inside := true
	exit := func() {
		if inside {
			inside = false
			b.gate.Exit()
		}
	}
	defer exit()

	if fwd := b.forwarder(); fwd != nil {
		exit()
		return fwd.ReceiveReply(reply)
	}

	pool, err := b.currentBehavior().futurePool()
	if err != nil {
		return errors.Wrapf(ErrBodyTerminated, "reply for %s", reply.Future)
	}
	for _, f := range reply.staged {
		pool.ReceiveFuture(f)
	}
	reply.staged = nil
	pool.ReceiveFutureValue(reply.Future, reply.Result)
	return nil
}

func (b *Body) String() string {
	return "body(" + b.id.String() + ", " + b.State().String() + ")"
}
