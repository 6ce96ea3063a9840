// File: link.go
package activebody

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Link joins two runtimes of one process as if they were apart: every
// request and reply crossing it is encoded to CBOR and decoded on the other
// side, so futures travel by id and are fed by automatic continuations.
type Link struct {
	a, b     *Runtime
	requests atomic.Int64
	replies  atomic.Int64
}

// NewLink links a and b and lets each runtime locate the bodies of the
// other through it.
func NewLink(a, b *Runtime) *Link {
	l := &Link{a: a, b: b}
	a.AddLocator(l.Locator(a))
	b.AddLocator(l.Locator(b))
	return l
}

func (l *Link) peer(rt *Runtime) (*Runtime, error) {
	switch rt {
	case l.a:
		return l.b, nil
	case l.b:
		return l.a, nil
	}
	return nil, errors.New("runtime is not an end of this link")
}

// Remote returns a receiver usable in from that reaches the body id of the
// other runtime.
func (l *Link) Remote(from *Runtime, id UniqueID) (Receiver, error) {
	to, err := l.peer(from)
	if err != nil {
		return nil, err
	}
	return &remoteRef{link: l, local: from, remote: to, id: id}, nil
}

// Locator resolves, for from, the ids registered in the other runtime.
func (l *Link) Locator(from *Runtime) Locator {
	return LocatorFunc(func(id UniqueID) (Receiver, error) {
		to, err := l.peer(from)
		if err != nil {
			return nil, err
		}
		if _, ok := to.registry.Lookup(id); !ok {
			return nil, errors.Wrapf(ErrUnknownBody, "%s", id)
		}
		return &remoteRef{link: l, local: from, remote: to, id: id}, nil
	})
}

// Requests counts the requests that crossed the link.
func (l *Link) Requests() int64 { return l.requests.Load() }

// Replies counts the replies that crossed the link.
func (l *Link) Replies() int64 { return l.replies.Load() }

// remoteRef lives in local and stands for the receiver id of remote. A
// reference created for the sender of a decoded request keeps the sender
// itself, so that its reply reaches it even once it left the registry, and
// the local receiver serving the request, whose pool feeds futures sent
// back in the reply.
type remoteRef struct {
	link   *Link
	local  *Runtime
	remote *Runtime
	id     UniqueID
	target Receiver
	server Receiver
}

func (r *remoteRef) ID() UniqueID { return r.id }

func (r *remoteRef) resolve() (Receiver, error) {
	if r.target != nil {
		return r.target, nil
	}
	rcv, ok := r.remote.registry.Lookup(r.id)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBody, "%s", r.id)
	}
	return rcv, nil
}

func (r *remoteRef) ReceiveRequest(req *Request) error {
	target, err := r.resolve()
	if err != nil {
		return err
	}
	data, err := encodeRequest(req, poolOf(req.Sender), r)
	if err != nil {
		return errors.Wrapf(err, "cannot send %s to %s", req.Call.Name, r.id)
	}
	in, err := decodeRequest(data)
	if err != nil {
		return err
	}
	if req.Sender != nil {
		in.Sender = &remoteRef{link: r.link, local: r.remote, remote: r.local, id: req.SenderID, target: req.Sender, server: target}
	}
	r.link.requests.Inc()
	return target.ReceiveRequest(in)
}

func (r *remoteRef) ReceiveReply(reply *Reply) error {
	target, err := r.resolve()
	if err != nil {
		return err
	}
	pool := poolOf(r.server)
	if pool == nil {
		if rcv, ok := r.local.registry.Lookup(reply.Sender); ok {
			pool = poolOf(rcv)
		}
	}
	data, err := encodeReply(reply, pool, r)
	if err != nil {
		return errors.Wrapf(err, "cannot send reply to %s", r.id)
	}
	in, err := decodeReply(data)
	if err != nil {
		return err
	}
	r.link.replies.Inc()
	return target.ReceiveReply(in)
}

func poolOf(rcv Receiver) *FuturePool {
	if fwd, ok := rcv.(*Forwarder); ok {
		return poolOf(fwd.Target())
	}
	lb, ok := rcv.(LocalBody)
	if !ok {
		return nil
	}
	pool, err := lb.FuturePool()
	if err != nil {
		return nil
	}
	return pool
}
