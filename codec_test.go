// File: codec_test.go
package activebody

import (
	"context"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Request(t *testing.T) {
	req := &Request{
		SenderID: NewUniqueID("sender"),
		Target:   NewUniqueID("target"),
		Call:     call("Sum", 1, 2, "x"),
		Seq:      42,
		OneWay:   true,
		Tags:     NewTags(Tag{ID: "session", Data: "s1", Propagate: true}),
	}
	data, err := encodeRequest(req, nil, nil)
	require.NoError(t, err)

	in, err := decodeRequest(data)
	require.NoError(t, err)
	assert.Nil(t, in.Sender)
	assert.Equal(t, req.SenderID, in.SenderID)
	assert.Equal(t, req.Target, in.Target)
	assert.Equal(t, "Sum", in.Method())
	assert.Equal(t, uint64(42), in.Seq)
	assert.True(t, in.OneWay)
	require.Len(t, in.Call.Args, 3)

	s, err := coerce(context.Background(), in.Call.Args[2], reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "x", s.Interface())

	tag, ok := in.Tags.Get("session")
	require.True(t, ok)
	assert.Equal(t, "s1", tag.Data)
	assert.True(t, tag.Propagate)
}

func TestCodec_FutureArguments(t *testing.T) {
	pool := NewFuturePool(NewUniqueID("sender"))
	dest := newReplySink(0)

	awaited := newFuture(FutureID{Creator: pool.Owner(), Seq: 1})
	pool.register(awaited)
	done := newFuture(FutureID{Creator: pool.Owner(), Seq: 2})
	done.resolve(Result{Err: ErrNoSuchMethod})

	req := &Request{SenderID: pool.Owner(), Call: call("Use", awaited, done)}
	data, err := encodeRequest(req, pool, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.PendingACs(), "the awaited future continues towards the destination")

	in, err := decodeRequest(data)
	require.NoError(t, err)
	require.Len(t, in.staged, 1)
	assert.Equal(t, awaited.ID(), in.staged[0].ID())

	f, ok := in.Call.Args[1].(*Future)
	require.True(t, ok)
	r, resolved := f.Resolved()
	require.True(t, resolved)
	assert.ErrorIs(t, r.Err, ErrNoSuchMethod)

	pool.ReceiveFutureValue(awaited.ID(), Result{Value: 3})
	dest.wait(t)
	assert.Equal(t, awaited.ID(), dest.Replies()[0].Future)
}

func TestCodec_Reply(t *testing.T) {
	reply := &Reply{
		Sender: NewUniqueID("server"),
		Future: testFutureID(9),
		Result: Result{Value: []string{"a"}, Err: errors.Wrap(ErrBodyTerminated, "gone")},
	}
	data, err := encodeReply(reply, nil, nil)
	require.NoError(t, err)

	in, err := decodeReply(data)
	require.NoError(t, err)
	assert.Equal(t, reply.Sender, in.Sender)
	assert.Equal(t, reply.Future, in.Future)
	assert.ErrorIs(t, in.Result.Err, ErrBodyTerminated)
	assert.Contains(t, in.Result.Err.Error(), "gone")

	f := newFuture(in.Future)
	f.resolve(Result{Value: in.Result.Value})
	v, err := Await[[]string](context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v)
}

func TestCodec_ErrorKinds(t *testing.T) {
	cases := map[string]error{
		"unknown-body": errors.Wrap(ErrUnknownBody, "x"),
		"undeclared":   &UndeclaredError{Method: "m", Cause: "boom"},
		"panic":        &PanicError{Method: "m", Value: "boom"},
		"delivery":     &DeliveryError{Target: NewUniqueID("t"), Cause: errors.New("down")},
		"error":        errInsufficientFunds,
	}
	for kind, err := range cases {
		assert.Equal(t, kind, errorKind(err), kind)
	}

	remote := decodeError(encodeError(errors.Wrap(ErrRuntimeStopping, "late")))
	assert.ErrorIs(t, remote, ErrRuntimeStopping)
	assert.Equal(t, "runtime-stopping", errorKind(remote), "a remote error keeps its kind when relayed")
	assert.Nil(t, encodeError(nil))
	assert.Nil(t, decodeError(nil))
}
