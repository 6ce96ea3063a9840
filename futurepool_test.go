// File: futurepool_test.go
package activebody

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuturePool_ReplyResolvesRegisteredFuture(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	f := newFuture(testFutureID(1))
	pool.register(f)
	assert.Equal(t, 1, pool.Len())

	pool.ReceiveFutureValue(f.ID(), Result{Value: "done"})
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, 0, pool.Len())
}

func TestFuturePool_SecondValueIgnored(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	f := newFuture(testFutureID(1))
	pool.register(f)

	pool.ReceiveFutureValue(f.ID(), Result{Value: 1})
	pool.ReceiveFutureValue(f.ID(), Result{Value: 2})
	r, ok := f.Resolved()
	require.True(t, ok)
	assert.Equal(t, 1, r.Value)
}

func TestFuturePool_ValueBeforeFuture(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	id := testFutureID(3)

	pool.ReceiveFutureValue(id, Result{Value: "early"})
	f := newFuture(id)
	pool.ReceiveFuture(f)

	r, ok := f.Resolved()
	require.True(t, ok, "a parked value must resolve the future on arrival")
	assert.Equal(t, "early", r.Value)
	assert.Equal(t, 0, pool.Len())
}

func TestFuturePool_ResolvedIncomingFutureIgnored(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	f := newFuture(testFutureID(1))
	f.resolve(Result{Value: 1})
	pool.ReceiveFuture(f)
	assert.Equal(t, 0, pool.Len())
}

func TestFuturePool_AutomaticContinuation(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	sink := newReplySink(0)
	f := newFuture(testFutureID(1))
	pool.register(f)

	_, resolved := pool.AddAutomaticContinuation(f, sink)
	assert.False(t, resolved)
	assert.Equal(t, 1, pool.PendingACs())
	assert.True(t, pool.HasPendingACs())

	pool.ReceiveFutureValue(f.ID(), Result{Value: 9})
	sink.wait(t)

	replies := sink.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, f.ID(), replies[0].Future)
	assert.Equal(t, 9, replies[0].Result.Value)
	assert.Equal(t, pool.Owner(), replies[0].Sender)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.WaitACs(ctx))
	assert.Equal(t, 0, pool.PendingACs())
}

func TestFuturePool_ContinuationOfResolvedFuture(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	f := newFuture(testFutureID(1))
	f.resolve(Result{Value: "now"})

	r, resolved := pool.AddAutomaticContinuation(f, newReplySink(0))
	assert.True(t, resolved)
	assert.Equal(t, "now", r.Value)
	assert.Equal(t, 0, pool.PendingACs())
}

func TestFuturePool_DisabledContinuations(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	pool.DisableACs()
	assert.False(t, pool.ACsEnabled())

	f := newFuture(testFutureID(1))
	_, resolved := pool.AddAutomaticContinuation(f, newReplySink(0))
	assert.False(t, resolved)
	assert.Equal(t, 0, pool.PendingACs())

	pool.EnableACs()
	assert.True(t, pool.ACsEnabled())
}

func TestFuturePool_FailedContinuationStillDrains(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	f := newFuture(testFutureID(1))
	pool.AddAutomaticContinuation(f, newReplySink(1))

	drained := make(chan struct{})
	pool.OnDrained(func() { close(drained) })

	pool.ReceiveFutureValue(f.ID(), Result{Value: 1})
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("pool did not drain after a failed continuation")
	}
}

func TestFuturePool_OnDrainedRunsAtOnceWhenIdle(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	ran := false
	pool.OnDrained(func() { ran = true })
	assert.True(t, ran)
}

func TestFuturePool_Cancel(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	f := newFuture(testFutureID(1))
	g := newFuture(testFutureID(2))
	pool.register(f)
	pool.AddAutomaticContinuation(g, newReplySink(0))
	require.Equal(t, 1, pool.PendingACs())

	pool.Cancel(ErrBodyTerminated)

	_, err := f.Get(context.Background())
	assert.ErrorIs(t, err, ErrBodyTerminated)
	_, err = g.Get(context.Background())
	assert.ErrorIs(t, err, ErrBodyTerminated)
	assert.Equal(t, 0, pool.PendingACs())
	assert.Equal(t, 0, pool.Len())
}

func TestFuturePool_ContinuationRecordedOncePerDestination(t *testing.T) {
	src := NewFuturePool(NewUniqueID("src"))
	dest := NewFuturePool(NewUniqueID("dest"))
	half := newHalfBody(nil, 1)
	half.pool = dest

	f := newFuture(testFutureID(1))
	src.register(f)
	src.AddAutomaticContinuation(f, half)
	src.AddAutomaticContinuation(f, half)
	assert.Equal(t, 1, src.PendingACs(), "the same destination is fed once")

	copyOfF := newFuture(f.ID())
	dest.ReceiveFuture(copyOfF)
	src.ReceiveFutureValue(f.ID(), Result{Value: 4})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, src.WaitACs(ctx))
	v, err := copyOfF.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	assert.Empty(t, dest.early)
}

func TestFuturePool_DuplicateValueDropped(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	g := newFuture(testFutureID(1))
	pool.register(g)

	pool.ReceiveFutureValue(g.ID(), Result{Value: 1})
	pool.ReceiveFutureValue(g.ID(), Result{Value: 2})
	assert.Empty(t, pool.early, "a second value is not parked")

	late := newFuture(g.ID())
	pool.ReceiveFuture(late)
	r, ok := late.Resolved()
	require.True(t, ok, "a late copy gets the settled outcome")
	assert.Equal(t, 1, r.Value)
	assert.Equal(t, 0, pool.Len())
}

func TestFuturePool_SettledOutcomesAreBounded(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	for i := 0; i < settledCapacity+10; i++ {
		f := newFuture(testFutureID(uint64(i + 1)))
		pool.register(f)
		pool.ReceiveFutureValue(f.ID(), Result{Value: i})
	}
	assert.Len(t, pool.settled, settledCapacity)
	assert.Len(t, pool.settledOrder, settledCapacity)
}

func TestFuturePool_CancelledIdsDropLateValues(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("owner"))
	f := newFuture(testFutureID(1))
	pool.register(f)
	pool.Cancel(ErrBodyTerminated)

	pool.ReceiveFutureValue(f.ID(), Result{Value: 1})
	assert.Empty(t, pool.early)
}
