// File: errors.go
package activebody

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBodyTerminated is returned when a request or reply reaches a body
	// that is dead and has no surviving future pool.
	ErrBodyTerminated = errors.New("activebody: body is terminated")
	// ErrInactiveBody is returned when the queue or the future pool of a body
	// is accessed after the body left the active state.
	ErrInactiveBody = errors.New("activebody: body is not active")
	// ErrHalfBody is returned when an operation only an active body supports
	// is attempted on a half body.
	ErrHalfBody = errors.New("activebody: operation not supported by a half body")
	// ErrAlreadyServing is returned when Serve is entered while the body is
	// already serving another request.
	ErrAlreadyServing = errors.New("activebody: body is already serving a request")
	ErrUnknownBody    = errors.New("activebody: unknown body")
	ErrNoSuchMethod   = errors.New("activebody: no such method")
	ErrBadArguments   = errors.New("activebody: arguments do not match method signature")
	// ErrSelfMigration is returned when a body is asked to migrate from its
	// own serving goroutine.
	ErrSelfMigration   = errors.New("activebody: a body cannot migrate itself from its serving goroutine")
	ErrRuntimeStopping = errors.New("activebody: runtime is stopping")
)

// PanicError carries a panic raised by a served method whose signature
// declares an error result.
type PanicError struct {
	Method string
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("activebody: method %s panicked: %v", e.Method, e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// UndeclaredError is the reply payload produced when a method that declares
// no error result fails. Forwarding the raw failure would hand the caller a
// value its signature never promised.
type UndeclaredError struct {
	Method string
	Cause  any
}

func (e *UndeclaredError) Error() string {
	return fmt.Sprintf("activebody: method %s failed without declaring an error result: %v", e.Method, e.Cause)
}

// DeliveryError replaces a reply whose first delivery attempt failed.
type DeliveryError struct {
	Target UniqueID
	Cause  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("activebody: reply delivery to %s failed: %v", e.Target, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// RemoteError is an error that crossed the codec and has no local sentinel.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Unwrap returns the local sentinel matching the error's kind, so errors.Is
// works across a Link.
func (e *RemoteError) Unwrap() error {
	return sentinelForKind(e.Kind)
}
