// File: request.go
package activebody

import "strings"

// Names of the requests that drive termination instead of reaching the
// target object.
const (
	TerminateMethod            = "_terminateAO"
	TerminateImmediatelyMethod = "_terminateAOImmediately"
	terminatePrefix            = "_terminateAO"
)

// Receiver is anything a request or a reply can be delivered to: a local
// body, a half body, a forwarder or a link endpoint reaching another runtime.
// ReceiveRequest and ReceiveReply are the only legal ways to inject work
// into a body from outside.
type Receiver interface {
	ID() UniqueID
	ReceiveRequest(req *Request) error
	ReceiveReply(reply *Reply) error
}

// MethodCall is a reified invocation: which method, with which arguments.
type MethodCall struct {
	Name string
	Args []any
}

// Request is one invocation travelling towards a body. It must not be
// modified once handed to ReceiveRequest.
type Request struct {
	// Sender receives the reply. It is nil for requests that no body sent.
	Sender   Receiver
	SenderID UniqueID
	Target   UniqueID
	Call     MethodCall
	// Seq correlates the reply with the sender's future. Queues order by
	// arrival, never by Seq.
	Seq    uint64
	OneWay bool
	Tags   *Tags

	// staged holds futures decoded from the payload until the receiving
	// body has entered its gate.
	staged []*Future
}

// FutureID is the identifier of the future awaiting this request's reply.
func (r *Request) FutureID() FutureID {
	return FutureID{Creator: r.SenderID, Seq: r.Seq}
}

// IsTermination reports whether the request asks the body to terminate.
func (r *Request) IsTermination() bool {
	return strings.HasPrefix(r.Call.Name, terminatePrefix)
}

// Method returns the name of the requested method.
func (r *Request) Method() string {
	return r.Call.Name
}

// Reply is the result of serving a request, routed back to the future pool
// of the request's sender.
type Reply struct {
	// Sender is the body that served the request.
	Sender UniqueID
	Future FutureID
	Result Result

	staged []*Future
}
