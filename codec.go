// File: codec.go
package activebody

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("activebody: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

type wireError struct {
	Kind    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

// wireValue is an argument or a result. A future travels as its id, plus
// its outcome when it was already resolved at encoding time.
type wireValue struct {
	Future   *FutureID       `cbor:"1,keyasint,omitempty"`
	Resolved bool            `cbor:"2,keyasint,omitempty"`
	Data     cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	Err      *wireError      `cbor:"4,keyasint,omitempty"`
}

type wireRequest struct {
	Sender UniqueID    `cbor:"1,keyasint"`
	Target UniqueID    `cbor:"2,keyasint"`
	Method string      `cbor:"3,keyasint"`
	Args   []wireValue `cbor:"4,keyasint,omitempty"`
	Seq    uint64      `cbor:"5,keyasint"`
	OneWay bool        `cbor:"6,keyasint,omitempty"`
	Tags   []Tag       `cbor:"7,keyasint,omitempty"`
}

type wireReply struct {
	Sender UniqueID   `cbor:"1,keyasint"`
	Future FutureID   `cbor:"2,keyasint"`
	Value  wireValue  `cbor:"3,keyasint"`
	Err    *wireError `cbor:"4,keyasint,omitempty"`
}

var errorKinds = []struct {
	kind string
	err  error
}{
	{"body-terminated", ErrBodyTerminated},
	{"inactive-body", ErrInactiveBody},
	{"half-body", ErrHalfBody},
	{"already-serving", ErrAlreadyServing},
	{"unknown-body", ErrUnknownBody},
	{"no-such-method", ErrNoSuchMethod},
	{"bad-arguments", ErrBadArguments},
	{"self-migration", ErrSelfMigration},
	{"runtime-stopping", ErrRuntimeStopping},
}

func sentinelForKind(kind string) error {
	for _, k := range errorKinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}

func errorKind(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	var undeclared *UndeclaredError
	var panicked *PanicError
	var delivery *DeliveryError
	switch {
	case errors.As(err, &undeclared):
		return "undeclared"
	case errors.As(err, &panicked):
		return "panic"
	case errors.As(err, &delivery):
		return "delivery"
	}
	return "error"
}

func encodeError(err error) *wireError {
	if err == nil {
		return nil
	}
	return &wireError{Kind: errorKind(err), Message: err.Error()}
}

func decodeError(we *wireError) error {
	if we == nil {
		return nil
	}
	return &RemoteError{Kind: we.Kind, Message: we.Message}
}

func encodeData(v any) (cbor.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot encode %T", v)
	}
	return data, nil
}

// encodeValue encodes v for dest. An awaited future is registered as an
// automatic continuation towards dest in pool, unless the pool reports it
// resolved in the meantime; then its outcome travels along.
func encodeValue(v any, pool *FuturePool, dest Receiver) (wireValue, error) {
	f, ok := v.(*Future)
	if !ok {
		data, err := encodeData(v)
		return wireValue{Data: data}, err
	}

	id := f.ID()
	r, resolved := f.Resolved()
	if !resolved && pool != nil {
		r, resolved = pool.AddAutomaticContinuation(f, dest)
	}
	if !resolved {
		return wireValue{Future: &id}, nil
	}
	data, err := encodeData(r.Value)
	if err != nil {
		return wireValue{}, err
	}
	return wireValue{Future: &id, Resolved: true, Data: data, Err: encodeError(r.Err)}, nil
}

// decodeValue rebuilds a value. The second result is set for an awaited
// future, which the receiving body must take into its pool.
func decodeValue(wv wireValue) (any, *Future) {
	var data any
	if len(wv.Data) > 0 {
		data = wv.Data
	}
	if wv.Future == nil {
		return data, nil
	}
	f := newFuture(*wv.Future)
	if wv.Resolved {
		f.resolve(Result{Value: data, Err: decodeError(wv.Err)})
		return f, nil
	}
	return f, f
}

func encodeRequest(req *Request, pool *FuturePool, dest Receiver) ([]byte, error) {
	w := wireRequest{
		Sender: req.SenderID,
		Target: req.Target,
		Method: req.Call.Name,
		Seq:    req.Seq,
		OneWay: req.OneWay,
		Tags:   req.Tags.List(),
	}
	for i, arg := range req.Call.Args {
		wv, err := encodeValue(arg, pool, dest)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d of %s", i, req.Call.Name)
		}
		w.Args = append(w.Args, wv)
	}
	return encMode.Marshal(&w)
}

// decodeRequest rebuilds a request without its Sender, which only the
// transport can supply. Awaited futures are staged on the request.
func decodeRequest(data []byte) (*Request, error) {
	var w wireRequest
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "activebody: unmarshal request")
	}
	req := &Request{
		SenderID: w.Sender,
		Target:   w.Target,
		Call:     MethodCall{Name: w.Method},
		Seq:      w.Seq,
		OneWay:   w.OneWay,
	}
	if len(w.Tags) > 0 {
		req.Tags = NewTags(w.Tags...)
	}
	for _, wv := range w.Args {
		v, staged := decodeValue(wv)
		req.Call.Args = append(req.Call.Args, v)
		if staged != nil {
			req.staged = append(req.staged, staged)
		}
	}
	return req, nil
}

func encodeReply(reply *Reply, pool *FuturePool, dest Receiver) ([]byte, error) {
	wv, err := encodeValue(reply.Result.Value, pool, dest)
	if err != nil {
		return nil, errors.Wrapf(err, "reply for %s", reply.Future)
	}
	w := wireReply{
		Sender: reply.Sender,
		Future: reply.Future,
		Value:  wv,
		Err:    encodeError(reply.Result.Err),
	}
	return encMode.Marshal(&w)
}

func decodeReply(data []byte) (*Reply, error) {
	var w wireReply
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "activebody: unmarshal reply")
	}
	v, staged := decodeValue(w.Value)
	reply := &Reply{
		Sender: w.Sender,
		Future: w.Future,
		Result: Result{Value: v, Err: decodeError(w.Err)},
	}
	if staged != nil {
		reply.staged = append(reply.staged, staged)
	}
	return reply, nil
}
