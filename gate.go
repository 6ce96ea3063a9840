// File: gate.go
package activebody

import (
	"sync"

	"go.uber.org/atomic"
)

// ThreadGate lets a body refuse incoming messages for a while. Delivering
// goroutines Enter before touching the body and Exit afterwards; Close waits
// until every goroutine that entered has left and keeps newcomers out until
// Open.
type ThreadGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	open   bool
	inside int
	closed atomic.Bool
}

// NewThreadGate returns an open gate.
func NewThreadGate() *ThreadGate {
	g := &ThreadGate{open: true}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Enter blocks while the gate is closed and then counts the caller in.
func (g *ThreadGate) Enter() {
	g.mu.Lock()
	for !g.open {
		g.cond.Wait()
	}
	g.inside++
	g.mu.Unlock()
}

// Exit counts the caller out.
func (g *ThreadGate) Exit() {
	g.mu.Lock()
	g.inside--
	if g.inside < 0 {
		g.mu.Unlock()
		panic("activebody: ThreadGate.Exit without Enter")
	}
	if g.inside == 0 {
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// Close refuses new entrants and waits for the ones inside to exit.
// The caller must not be inside the gate.
func (g *ThreadGate) Close() {
	g.mu.Lock()
	g.open = false
	g.closed.Store(true)
	for g.inside > 0 {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Open lets blocked and future entrants in.
func (g *ThreadGate) Open() {
	g.mu.Lock()
	g.open = true
	g.closed.Store(false)
	g.cond.Broadcast()
	g.mu.Unlock()
}

// IsOpen reports whether the gate currently admits entrants.
func (g *ThreadGate) IsOpen() bool {
	return !g.closed.Load()
}

// Inside returns how many goroutines are currently counted in.
func (g *ThreadGate) Inside() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inside
}
