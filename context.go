// File: context.go
package activebody

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/petermattis/goid"
)

// ExecutionContext says on behalf of which body a goroutine is running and
// which request, if any, it is serving.
type ExecutionContext struct {
	Body    LocalBody
	Request *Request
}

// contextStacks keeps one stack of execution contexts per goroutine, plus
// the half bodies created for goroutines the runtime did not start.
type contextStacks struct {
	mu         sync.Mutex
	stacks     map[int64][]ExecutionContext
	halfBodies map[int64]*HalfBody

	gcInterval time.Duration
	lastGC     time.Time
}

func newContextStacks(gcInterval time.Duration) *contextStacks {
	return &contextStacks{
		stacks:     make(map[int64][]ExecutionContext),
		halfBodies: make(map[int64]*HalfBody),
		gcInterval: gcInterval,
	}
}

// push adds ec on top of the calling goroutine's stack. The returned pop
// must run on the same goroutine, on every exit path.
func (c *contextStacks) push(ec ExecutionContext) (pop func()) {
	g := goid.Get()
	c.mu.Lock()
	c.stacks[g] = append(c.stacks[g], ec)
	depth := len(c.stacks[g])
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		stack := c.stacks[g]
		if len(stack) != depth {
			log.Critical("execution context stack out of balance", "goroutine", g, "expected", depth, "actual", len(stack))
			if len(stack) < depth {
				return
			}
		}
		stack = stack[:depth-1]
		if len(stack) == 0 {
			delete(c.stacks, g)
			return
		}
		c.stacks[g] = stack
	}
}

func (c *contextStacks) current() (ExecutionContext, bool) {
	g := goid.Get()
	c.mu.Lock()
	defer c.mu.Unlock()
	stack := c.stacks[g]
	if len(stack) == 0 {
		return ExecutionContext{}, false
	}
	return stack[len(stack)-1], true
}

// depth returns the size of the calling goroutine's stack.
func (c *contextStacks) depth() int {
	g := goid.Get()
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stacks[g])
}

// CurrentContext returns the execution context of the calling goroutine.
// A goroutine with none gets a half body, created and registered on first
// use; creating one also collects the half bodies of dead goroutines.
func (rt *Runtime) CurrentContext() ExecutionContext {
	if ec, ok := rt.contexts.current(); ok {
		return ec
	}
	g := goid.Get()
	hb := newHalfBody(rt, g)
	ec := ExecutionContext{Body: hb}

	c := rt.contexts
	c.mu.Lock()
	c.halfBodies[g] = hb
	c.stacks[g] = append(c.stacks[g], ec)
	collect := time.Since(c.lastGC) >= c.gcInterval
	if collect {
		c.lastGC = time.Now()
	}
	c.mu.Unlock()

	rt.registry.Register(hb)
	if collect {
		rt.CollectHalfBodies()
	}
	return ec
}

// CollectHalfBodies unregisters the half bodies whose goroutine has exited
// and returns how many were collected. Their futures are cancelled once
// their pending automatic continuations are delivered; later replies are
// accepted and dropped.
func (rt *Runtime) CollectHalfBodies() int {
	live := liveGoroutines()
	c := rt.contexts

	c.mu.Lock()
	var dead []*HalfBody
	for g, hb := range c.halfBodies {
		if _, ok := live[g]; ok {
			continue
		}
		delete(c.halfBodies, g)
		delete(c.stacks, g)
		dead = append(dead, hb)
	}
	c.mu.Unlock()

	for _, hb := range dead {
		rt.registry.Unregister(hb)
		pool := hb.pool
		pool.OnDrained(func() { pool.Cancel(ErrBodyTerminated) })
	}
	if len(dead) > 0 {
		log.Debug("collected half bodies", "count", len(dead))
	}
	return len(dead)
}

// HalfBodies returns how many half bodies are currently attached to
// goroutines.
func (rt *Runtime) HalfBodies() int {
	rt.contexts.mu.Lock()
	defer rt.contexts.mu.Unlock()
	return len(rt.contexts.halfBodies)
}

// liveGoroutines lists the ids of every goroutine of the process.
func liveGoroutines() map[int64]struct{} {
	buf := make([]byte, 64<<10)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	live := make(map[int64]struct{})
	prefix := []byte("goroutine ")
	for _, line := range bytes.Split(buf, []byte("\n")) {
		if !bytes.HasPrefix(line, prefix) {
			continue
		}
		rest := line[len(prefix):]
		end := bytes.IndexByte(rest, ' ')
		if end < 0 {
			continue
		}
		id, err := strconv.ParseInt(string(rest[:end]), 10, 64)
		if err != nil {
			continue
		}
		live[id] = struct{}{}
	}
	return live
}
