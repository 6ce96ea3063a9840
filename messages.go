// File: messages.go
package activebody

import "time"

// --- Lifecycle notifications ---

// EventKind tells what happened to a body.
type EventKind int

const (
	// BodyCreated is emitted once the serving goroutine of a body started.
	BodyCreated EventKind = iota
	// RequestReceived is emitted when a request passed the body's gate.
	RequestReceived
	// ServiceStarted is emitted before the target method runs.
	ServiceStarted
	// ReplySent is emitted after a reply was handed to the caller.
	ReplySent
	// BodyTerminated is emitted when the body leaves the active state.
	BodyTerminated
)

func (k EventKind) String() string {
	switch k {
	case BodyCreated:
		return "body-created"
	case RequestReceived:
		return "request-received"
	case ServiceStarted:
		return "service-started"
	case ReplySent:
		return "reply-sent"
	case BodyTerminated:
		return "body-terminated"
	default:
		return "unknown"
	}
}

// Event describes one notification. Method, Seq and Peer are set for
// request related events only; Peer is the sender of the request.
type Event struct {
	Kind   EventKind
	Body   UniqueID
	Method string
	Seq    uint64
	Peer   UniqueID
	Time   time.Time
}

// Listener receives notifications. HandleEvent runs on the runtime's
// notification goroutine and should return quickly.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(e Event) { f(e) }

func requestEvent(kind EventKind, body UniqueID, req *Request) Event {
	return Event{
		Kind:   kind,
		Body:   body,
		Method: req.Call.Name,
		Seq:    req.Seq,
		Peer:   req.SenderID,
		Time:   time.Now(),
	}
}

func bodyEvent(kind EventKind, body UniqueID) Event {
	return Event{Kind: kind, Body: body, Time: time.Now()}
}
