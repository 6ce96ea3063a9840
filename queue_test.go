// File: queue_test.go
package activebody

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queued(method string) *Request {
	return &Request{Call: MethodCall{Name: method}}
}

func TestRequestQueue_FIFO(t *testing.T) {
	q := NewRequestQueue(NewUniqueID("owner"), nil)
	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, q.Add(queued(m)))
	}
	assert.Equal(t, 3, q.Len())
	assert.True(t, q.HasRequest("b"))
	assert.False(t, q.HasRequest("z"))

	var got []string
	for !q.IsEmpty() {
		req, err := q.RemoveOldest(nil)
		require.NoError(t, err)
		got = append(got, req.Method())
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	req, err := q.RemoveOldest(nil)
	assert.NoError(t, err)
	assert.Nil(t, req)
}

func TestRequestQueue_Filter(t *testing.T) {
	q := NewRequestQueue(NewUniqueID("owner"), nil)
	require.NoError(t, q.Add(queued("a")))
	require.NoError(t, q.Add(queued("b")))

	req, err := q.RemoveOldest(func(r *Request) bool { return r.Method() == "b" })
	require.NoError(t, err)
	assert.Equal(t, "b", req.Method())

	snapshot := q.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "a", snapshot[0].Method())
}

func TestRequestQueue_PriorityPolicy(t *testing.T) {
	q := NewRequestQueue(NewUniqueID("owner"), PriorityPolicy("urgent"))
	for _, m := range []string{"a", "urgent", "b"} {
		require.NoError(t, q.Add(queued(m)))
	}
	var got []string
	for !q.IsEmpty() {
		req, err := q.RemoveOldest(nil)
		require.NoError(t, err)
		got = append(got, req.Method())
	}
	assert.Equal(t, []string{"urgent", "a", "b"}, got)
}

func TestRequestQueue_BlockingRemoveWakesOnAdd(t *testing.T) {
	q := NewRequestQueue(NewUniqueID("owner"), nil)
	got := make(chan *Request, 1)
	go func() {
		req, err := q.BlockingRemoveOldest(context.Background())
		if err == nil {
			got <- req
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Add(queued("late")))
	select {
	case req := <-got:
		assert.Equal(t, "late", req.Method())
	case <-time.After(time.Second):
		t.Fatal("blocked consumer was not woken")
	}
}

func TestRequestQueue_BlockingRemoveHonoursContext(t *testing.T) {
	q := NewRequestQueue(NewUniqueID("owner"), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.BlockingRemoveOldest(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestQueue_Destroy(t *testing.T) {
	q := NewRequestQueue(NewUniqueID("owner"), nil)
	require.NoError(t, q.Add(queued("a")))
	require.NoError(t, q.Add(queued("b")))

	left := q.Destroy()
	require.Len(t, left, 2)
	assert.Equal(t, "a", left[0].Method())
	assert.True(t, q.IsDestroyed())
	assert.Nil(t, q.Destroy(), "second Destroy returns nothing")

	assert.ErrorIs(t, q.Add(queued("c")), ErrInactiveBody)
	_, err := q.RemoveOldest(nil)
	assert.ErrorIs(t, err, ErrInactiveBody)
}

func TestRequestQueue_DestroyWakesConsumer(t *testing.T) {
	q := NewRequestQueue(NewUniqueID("owner"), nil)
	errs := make(chan error, 1)
	go func() {
		_, err := q.BlockingRemoveOldest(context.Background())
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Destroy()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrInactiveBody)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken by Destroy")
	}
}

func TestRequestQueue_AcceptedRunsOnlyOnSuccess(t *testing.T) {
	q := NewRequestQueue(NewUniqueID("owner"), nil)
	accepted := 0
	require.NoError(t, q.add(queued("a"), func() {
		accepted++
		assert.Equal(t, 1, len(q.requests), "runs once the request is queued")
	}))
	assert.Equal(t, 1, accepted)

	q.Destroy()
	err := q.add(queued("b"), func() { accepted++ })
	assert.ErrorIs(t, err, ErrInactiveBody)
	assert.Equal(t, 1, accepted, "a refused request is not reported")
}
