// File: helpers_test.go
package activebody

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var errInsufficientFunds = errors.New("insufficient funds")

// account is the target object most tests drive.
type account struct {
	mu      sync.Mutex
	balance int
	log     []string

	serving    atomic.Int32
	maxServing atomic.Int32
	started    chan struct{}
	release    chan struct{}
}

func newAccount() *account {
	return &account{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (a *account) record(entry string) {
	a.mu.Lock()
	a.log = append(a.log, entry)
	a.mu.Unlock()
}

func (a *account) Log() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.log))
	copy(out, a.log)
	return out
}

func (a *account) Deposit(amount int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance += amount
	return a.balance
}

func (a *account) Balance() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

func (a *account) Withdraw(amount int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount > a.balance {
		return a.balance, errInsufficientFunds
	}
	a.balance -= amount
	return a.balance, nil
}

func (a *account) Note(entry string) {
	a.record(entry)
}

func (a *account) Sum(values ...int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

// Exclusive tracks how many services overlap.
func (a *account) Exclusive() int {
	n := a.serving.Inc()
	for {
		peak := a.maxServing.Load()
		if n <= peak || a.maxServing.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	a.serving.Dec()
	return int(n)
}

// Hold blocks the serving goroutine until release is closed or the
// service is interrupted.
func (a *account) Hold(ctx context.Context) error {
	a.started <- struct{}{}
	select {
	case <-a.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *account) Crash() int {
	panic("crash")
}

func (a *account) CrashDeclared() (int, error) {
	panic("crash")
}

func (a *account) Status() string {
	return "ok"
}

func newTestRuntime(t *testing.T, opts ...RuntimeOption) *Runtime {
	t.Helper()
	rt, err := NewRuntime(DefaultConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(time.Second) })
	return rt
}

func spawnAccount(t *testing.T, rt *Runtime, a *account, configure ...func(*Props)) (*Stub, *Body) {
	t.Helper()
	props := NewProps(func() any { return a }).WithName("account")
	for _, c := range configure {
		c(props)
	}
	stub, err := rt.NewActive(props)
	require.NoError(t, err)
	body, ok := rt.Body(stub.ID())
	require.True(t, ok, "body should be registered once NewActive returns")
	return stub, body
}

func waitStarted(t *testing.T, a *account) {
	t.Helper()
	select {
	case <-a.started:
	case <-time.After(time.Second):
		t.Fatal("service did not start within 1s")
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitTimeout waits for the WaitGroup or fails the test.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration, t *testing.T, failMsg string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("%s within %v", failMsg, timeout)
	}
}

// replySink is a Receiver that records replies and can refuse the first
// few deliveries.
type replySink struct {
	id     UniqueID
	mu     sync.Mutex
	refuse int
	got    []*Reply
	signal chan struct{}
}

func newReplySink(refuse int) *replySink {
	return &replySink{id: NewUniqueID("sink"), refuse: refuse, signal: make(chan struct{}, 16)}
}

func (s *replySink) ID() UniqueID { return s.id }

func (s *replySink) ReceiveRequest(*Request) error {
	return errors.New("sink accepts replies only")
}

func (s *replySink) ReceiveReply(r *Reply) error {
	s.mu.Lock()
	if s.refuse > 0 {
		s.refuse--
		s.mu.Unlock()
		return errors.New("transport down")
	}
	s.got = append(s.got, r)
	s.mu.Unlock()
	s.signal <- struct{}{}
	return nil
}

func (s *replySink) Replies() []*Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Reply, len(s.got))
	copy(out, s.got)
	return out
}

func (s *replySink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.signal:
	case <-time.After(time.Second):
		t.Fatal("no reply within 1s")
	}
}
