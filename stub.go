// File: stub.go
package activebody

import (
	"context"

	"github.com/pkg/errors"
)

// Stub is a reference to a body, local or reached through a Link. Calls
// made through it are sent on behalf of the calling goroutine's execution
// context: from inside a service they come from the serving body, from any
// other goroutine they come from that goroutine's half body.
type Stub struct {
	rt *Runtime
	id UniqueID
}

// NewStub returns a stub for id without checking that it can be located.
func NewStub(rt *Runtime, id UniqueID) *Stub {
	return &Stub{rt: rt, id: id}
}

func (s *Stub) ID() UniqueID      { return s.id }
func (s *Stub) Runtime() *Runtime { return s.rt }

// Call sends an asynchronous two-way call and returns the future of its
// result.
func (s *Stub) Call(method string, args ...any) (*Future, error) {
	return s.deliver(MethodCall{Name: method, Args: args}, false)
}

// Send sends a one-way call.
func (s *Stub) Send(method string, args ...any) error {
	_, err := s.deliver(MethodCall{Name: method, Args: args}, true)
	return err
}

// Invoke makes a synchronous call: it sends the call and waits for the
// result or for ctx to end.
func (s *Stub) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	f, err := s.Call(method, args...)
	if err != nil {
		return nil, err
	}
	return f.Get(ctx)
}

// Terminate asks the body to terminate. A normal termination is queued
// behind the requests already waiting; an immediate one is served at once,
// interrupting the service in progress.
func (s *Stub) Terminate(immediate bool) error {
	method := TerminateMethod
	if immediate {
		method = TerminateImmediatelyMethod
	}
	return s.Send(method)
}

// TerminateCompletingACs terminates the body once the automatic
// continuations pending in its future pool are delivered.
func (s *Stub) TerminateCompletingACs() error {
	return s.Send(TerminateMethod, true)
}

// deliver sends call through the cached location of the body. When the
// cached handle is stale the location is refreshed and the call retried
// once.
func (s *Stub) deliver(call MethodCall, oneWay bool) (*Future, error) {
	rcv, err := s.rt.locations.Get(s.id)
	if err != nil {
		return nil, err
	}
	f, err := s.rt.send(rcv, call, oneWay)
	if err == nil || !(errors.Is(err, ErrBodyTerminated) || errors.Is(err, ErrUnknownBody)) {
		return f, err
	}
	fresh, rerr := s.rt.locations.Refresh(s.id)
	if rerr != nil || fresh == rcv {
		return nil, err
	}
	log.Debug("retrying with a refreshed location", "body", s.id.String(), "method", call.Name)
	return s.rt.send(fresh, call, oneWay)
}

func (s *Stub) String() string {
	return "stub(" + s.id.String() + ")"
}
