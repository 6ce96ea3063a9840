// File: future_test.go
package activebody

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFutureID(seq uint64) FutureID {
	return FutureID{Creator: NewUniqueID("creator"), Seq: seq}
}

func TestFuture_ResolvesAtMostOnce(t *testing.T) {
	f := newFuture(testFutureID(1))
	assert.True(t, f.IsAwaited())

	assert.True(t, f.resolve(Result{Value: 1}))
	assert.False(t, f.resolve(Result{Value: 2}), "second resolution must be ignored")

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, f.IsAwaited())
}

func TestFuture_ConcurrentResolution(t *testing.T) {
	f := newFuture(testFutureID(1))
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.resolve(Result{Value: i}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	waitTimeout(&wg, time.Second, t, "Resolvers did not finish")
	assert.Equal(t, 1, wins)
}

func TestFuture_GetHonoursContext(t *testing.T) {
	f := newFuture(testFutureID(1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, f.IsAwaited())
}

func TestFuture_ResolvedSnapshot(t *testing.T) {
	f := newFuture(testFutureID(1))
	_, ok := f.Resolved()
	assert.False(t, ok)

	f.resolve(Result{Err: errInsufficientFunds})
	r, ok := f.Resolved()
	assert.True(t, ok)
	assert.Equal(t, errInsufficientFunds, r.Err)
	assert.Contains(t, f.String(), "resolved")
}

func TestAwait_Typed(t *testing.T) {
	f := newFuture(testFutureID(1))
	f.resolve(Result{Value: 42})
	n, err := Await[int](context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestAwait_DecodesEncodedValues(t *testing.T) {
	data, err := cbor.Marshal([]string{"a", "b"})
	require.NoError(t, err)

	f := newFuture(testFutureID(1))
	f.resolve(Result{Value: cbor.RawMessage(data)})
	v, err := Await[[]string](context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestAwait_ConvertsNumbers(t *testing.T) {
	f := newFuture(testFutureID(1))
	f.resolve(Result{Value: int64(7)})
	n, err := Await[int](context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestAwait_NilValueGivesZero(t *testing.T) {
	f := newFuture(testFutureID(1))
	f.resolve(Result{})
	s, err := Await[string](context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "", s)
}
