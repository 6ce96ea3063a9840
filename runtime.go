// File: runtime.go
package activebody

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Runtime hosts active bodies: it owns their registry, the execution
// context stacks of the goroutines that touch them, the location cache
// stubs resolve through, and the tag memory.
type Runtime struct {
	cfg       Config
	registry  *LocalRegistry
	locations *LocationCache
	contexts  *contextStacks
	tagMemory *TagMemory
	hooks     *notifier
	exit      func(int)
	stopping  atomic.Bool

	locMu    sync.RWMutex
	locators []Locator
}

// RuntimeOption customizes a Runtime at construction.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	listeners []Listener
	exit      func(int)
	locators  []Locator
}

// WithListener adds a listener for lifecycle and request events.
func WithListener(l Listener) RuntimeOption {
	return func(o *runtimeOptions) { o.listeners = append(o.listeners, l) }
}

// WithExitFunc replaces os.Exit as the action taken when the registry
// becomes empty and Config.ExitOnEmpty is set.
func WithExitFunc(fn func(int)) RuntimeOption {
	return func(o *runtimeOptions) { o.exit = fn }
}

// WithLocator adds a locator consulted after the local registry, for
// bodies living in other runtimes.
func WithLocator(l Locator) RuntimeOption {
	return func(o *runtimeOptions) { o.locators = append(o.locators, l) }
}

// NewRuntime creates a runtime with the given configuration.
func NewRuntime(cfg Config, opts ...RuntimeOption) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	o := runtimeOptions{exit: os.Exit}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{
		cfg:       cfg,
		contexts:  newContextStacks(cfg.HalfBodyGCInterval.Duration),
		tagMemory: newTagMemory(cfg.MaxTagLease.Duration),
		hooks:     newNotifier(cfg.HookBuffer, o.listeners),
		exit:      o.exit,
		locators:  o.locators,
	}
	rt.registry = NewLocalRegistry(rt.registryEmpty)
	rt.locations = NewLocationCache(LocatorFunc(rt.locate))
	go rt.tagMemory.run(cfg.MaxTagLease.Duration)
	return rt, nil
}

// AddLocator adds a locator consulted after the local registry.
func (rt *Runtime) AddLocator(l Locator) {
	rt.locMu.Lock()
	rt.locators = append(rt.locators, l)
	rt.locMu.Unlock()
}

func (rt *Runtime) locate(id UniqueID) (Receiver, error) {
	if rcv, ok := rt.registry.Lookup(id); ok {
		return rcv, nil
	}
	rt.locMu.RLock()
	locators := rt.locators
	rt.locMu.RUnlock()
	return ChainLocators(locators...).Locate(id)
}

func (rt *Runtime) registryEmpty() {
	if !rt.cfg.ExitOnEmpty || rt.stopping.Load() {
		return
	}
	log.Notice("no active body left, exiting")
	rt.exit(0)
}

func (rt *Runtime) Config() Config              { return rt.cfg }
func (rt *Runtime) Registry() *LocalRegistry    { return rt.registry }
func (rt *Runtime) Locations() *LocationCache   { return rt.locations }
func (rt *Runtime) TagMemory() *TagMemory       { return rt.tagMemory }
func (rt *Runtime) IsStopping() bool            { return rt.stopping.Load() }
func (rt *Runtime) DroppedNotifications() int64 { return rt.hooks.Dropped() }

// NewActive creates a body for the object props produces and starts its
// serving goroutine. The body is registered when NewActive returns; the
// object itself is produced and initialized on the serving goroutine, and
// requests sent meanwhile wait in the queue.
func (rt *Runtime) NewActive(props *Props) (*Stub, error) {
	if props == nil {
		return nil, errors.New("props cannot be nil")
	}
	if rt.stopping.Load() {
		return nil, errors.Wrap(ErrRuntimeStopping, "cannot create a body")
	}
	b := newBody(rt, NewUniqueID(props.displayName()), props)
	go b.run(false)
	<-b.started
	log.Debug("body created", "body", b.id.String())
	return &Stub{rt: rt, id: b.id}, nil
}

// Lookup returns a stub for the body registered under id in this runtime
// or reachable through one of its locators.
func (rt *Runtime) Lookup(id UniqueID) (*Stub, error) {
	if _, err := rt.locations.Get(id); err != nil {
		return nil, err
	}
	return &Stub{rt: rt, id: id}, nil
}

// Body returns the local body registered under id.
func (rt *Runtime) Body(id UniqueID) (*Body, bool) {
	return rt.registry.Body(id)
}

// send issues call towards dest on behalf of the calling goroutine's
// execution context.
func (rt *Runtime) send(dest Receiver, call MethodCall, oneWay bool) (*Future, error) {
	ec := rt.CurrentContext()
	return ec.Body.currentBehavior().sendRequest(ec.Request, dest, call, oneWay)
}

// sendRequest builds a request from sender and delivers it to dest. For a
// two-way call the future is registered in pool before delivery, so a reply
// can never overtake it, and withdrawn again when delivery fails.
func (rt *Runtime) sendRequest(sender LocalBody, pool *FuturePool, inService *Request, dest Receiver, call MethodCall, oneWay bool) (*Future, error) {
	if rt.stopping.Load() && !strings.HasPrefix(call.Name, terminatePrefix) {
		return nil, errors.Wrapf(ErrRuntimeStopping, "cannot send %s", call.Name)
	}
	req := &Request{
		Sender:   sender,
		SenderID: sender.ID(),
		Target:   dest.ID(),
		Call:     call,
		Seq:      sender.nextSeq(),
		OneWay:   oneWay,
	}
	applyTags(inService, req, rt.cfg.Tracing)

	if oneWay {
		return nil, dest.ReceiveRequest(req)
	}
	if pool == nil {
		return nil, errors.Wrapf(ErrInactiveBody, "%s cannot own a future", sender.ID())
	}
	f := newFuture(req.FutureID())
	pool.register(f)
	if err := dest.ReceiveRequest(req); err != nil {
		pool.unregister(f)
		return nil, err
	}
	return f, nil
}

// Shutdown terminates every body and waits up to timeout for them to be
// final. Bodies still draining continuations when the timeout expires are
// reported in the returned error.
func (rt *Runtime) Shutdown(timeout time.Duration) error {
	if !rt.stopping.CompareAndSwap(false, true) {
		log.Warning("runtime already shutting down")
		return nil
	}
	bodies := rt.registry.Bodies()
	log.Info("runtime shutdown initiated", "bodies", len(bodies))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var (
		g       errgroup.Group
		mu      sync.Mutex
		pending []string
	)
	for _, b := range bodies {
		b := b
		g.Go(func() error {
			b.Terminate(false)
			select {
			case <-b.Done():
			case <-ctx.Done():
				mu.Lock()
				pending = append(pending, b.id.String())
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	rt.tagMemory.close()
	rt.hooks.close()

	if len(pending) > 0 {
		log.Warning("runtime shutdown timeout", "bodies", strings.Join(pending, ", "))
		return errors.Errorf("%d bodies did not stop: %s", len(pending), strings.Join(pending, ", "))
	}
	log.Info("runtime shutdown complete")
	return nil
}
