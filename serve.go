// File: serve.go
package activebody

import (
	"context"
	"reflect"
)

// Serve serves req on the calling goroutine. Only the code that removed req
// from the body's queue may call it, and never while another request is
// being served (ErrAlreadyServing). Outgoing calls from within a service
// are fine.
func (b *Body) Serve(req *Request) error {
	return b.currentBehavior().serve(req)
}

func (b *Body) serveExclusive(req *Request) error {
	if !b.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer b.serving.Store(false)
	return b.serveRequest(req, true)
}

// serveRequest runs the requested method and answers the sender. The
// returned error is the undeclared failure of the method, if any; declared
// failures travel in the reply.
func (b *Body) serveRequest(req *Request, interruptible bool) error {
	if req.IsTermination() {
		return b.serveTermination(req)
	}
	<-b.ready

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if interruptible {
		b.serviceMu.Lock()
		b.serviceCancel = cancel
		b.serviceMu.Unlock()
		defer func() {
			b.serviceMu.Lock()
			b.serviceCancel = nil
			b.serviceMu.Unlock()
		}()
	}

	pop := b.rt.contexts.push(ExecutionContext{Body: b, Request: req})
	defer pop()

	b.rt.hooks.notify(requestEvent(ServiceStarted, b.id, req))
	res, undeclared := invoke(ctx, b.target, req.Call)
	if undeclared != nil {
		log.Error("undeclared failure", "body", b.id.String(), "method", req.Call.Name, "error", undeclared)
	}
	if req.OneWay {
		if res.Err != nil && undeclared == nil {
			log.Warning("one-way service failed", "body", b.id.String(), "method", req.Call.Name, "error", res.Err)
		}
		return undeclared
	}
	b.sendReply(req, res)
	return undeclared
}

// serveTermination handles the _terminateAO family. The optional first
// argument asks to complete automatic continuations. A two-way termination
// is acknowledged before the body goes down.
func (b *Body) serveTermination(req *Request) error {
	completeACs := false
	if len(req.Call.Args) > 0 {
		if v, err := coerce(context.Background(), req.Call.Args[0], reflect.TypeOf(false)); err == nil {
			completeACs = v.Bool()
		}
	}
	if !req.OneWay {
		b.sendReply(req, Result{})
	}
	b.terminate(completeACs, nil)
	return nil
}

// sendReply delivers the result to the sender. A failed delivery is retried
// exactly once with the delivery failure as the payload; if that fails too
// the reply is lost and the caller's future stays awaited.
func (b *Body) sendReply(req *Request, res Result) {
	if req.Sender == nil {
		return
	}
	reply := &Reply{Sender: b.id, Future: req.FutureID(), Result: res}
	err := req.Sender.ReceiveReply(reply)
	if err == nil {
		b.rt.hooks.notify(requestEvent(ReplySent, b.id, req))
		return
	}
	log.Warning("reply delivery failed, sending the failure instead", "body", b.id.String(), "method", req.Call.Name, "sender", req.SenderID.String(), "error", err)

	retry := &Reply{
		Sender: b.id,
		Future: req.FutureID(),
		Result: Result{Err: &DeliveryError{Target: req.SenderID, Cause: err}},
	}
	if err := req.Sender.ReceiveReply(retry); err != nil {
		log.Error("reply lost", "body", b.id.String(), "method", req.Call.Name, "sender", req.SenderID.String(), "error", err)
		return
	}
	b.rt.hooks.notify(requestEvent(ReplySent, b.id, req))
}
