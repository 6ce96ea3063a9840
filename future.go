// File: future.go
package activebody

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/atomic"
)

// FutureID identifies a future: the body that created it and the sequence
// number of the request whose reply will resolve it.
type FutureID struct {
	Creator UniqueID `cbor:"1,keyasint"`
	Seq     uint64   `cbor:"2,keyasint"`
}

func (id FutureID) String() string {
	return fmt.Sprintf("%s#%d", id.Creator, id.Seq)
}

// Result is what a served method produced: a value or an error.
type Result struct {
	Value any
	Err   error
}

// Future is a placeholder for the result of an asynchronous call. It is
// resolved at most once; later resolutions are ignored.
type Future struct {
	id       FutureID
	done     chan struct{}
	resolved atomic.Bool
	result   Result
}

func newFuture(id FutureID) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

func (f *Future) ID() FutureID { return f.id }

// Done returns a channel closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// IsAwaited reports whether the result is still missing.
func (f *Future) IsAwaited() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

// Resolved returns the result if it is available.
func (f *Future) Resolved() (Result, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return Result{}, false
	}
}

// Get waits for the result or for ctx to end. An error carried by the
// result is returned as is.
func (f *Future) Get(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result.Value, f.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve sets the result once; it reports false when the future was
// already resolved.
func (f *Future) resolve(r Result) bool {
	if !f.resolved.CompareAndSwap(false, true) {
		return false
	}
	f.result = r
	close(f.done)
	return true
}

func (f *Future) String() string {
	if f.IsAwaited() {
		return fmt.Sprintf("future(%s, awaited)", f.id)
	}
	return fmt.Sprintf("future(%s, resolved)", f.id)
}

// Await waits for f and converts its value to T. Values that crossed a Link
// arrive encoded and are decoded into T here.
func Await[T any](ctx context.Context, f *Future) (T, error) {
	var zero T
	v, err := f.Get(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	rv, err := coerce(ctx, v, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	return rv.Interface().(T), nil
}
