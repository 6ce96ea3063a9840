// File: forwarder.go
package activebody

import "go.uber.org/atomic"

// Forwarder stays behind in the registry of a runtime a body migrated away
// from. Old references keep resolving to it and it passes everything on to
// the body's new location.
type Forwarder struct {
	id        UniqueID
	target    Receiver
	forwarded atomic.Int64
}

func NewForwarder(id UniqueID, target Receiver) *Forwarder {
	return &Forwarder{id: id, target: target}
}

func (f *Forwarder) ID() UniqueID     { return f.id }
func (f *Forwarder) Target() Receiver { return f.target }

// Forwarded counts the messages passed on so far.
func (f *Forwarder) Forwarded() int64 { return f.forwarded.Load() }

func (f *Forwarder) ReceiveRequest(req *Request) error {
	f.forwarded.Inc()
	return f.target.ReceiveRequest(req)
}

func (f *Forwarder) ReceiveReply(reply *Reply) error {
	f.forwarded.Inc()
	return f.target.ReceiveReply(reply)
}
