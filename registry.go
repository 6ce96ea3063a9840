// File: registry.go
package activebody

import (
	"sort"

	cmp "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
)

type entryKind int

const (
	entryBody entryKind = iota
	entryHalfBody
	entryForwarder
)

type registryEntry struct {
	receiver Receiver
	kind     entryKind
	internal bool
}

// LocalRegistry maps identifiers to the bodies, half bodies and forwarders
// of one runtime. Each Runtime owns its own registry.
type LocalRegistry struct {
	entries cmp.ConcurrentMap[string, registryEntry]
	onEmpty func()
}

// NewLocalRegistry returns an empty registry. onEmpty, when not nil, runs
// each time the last user body leaves it.
func NewLocalRegistry(onEmpty func()) *LocalRegistry {
	return &LocalRegistry{
		entries: cmp.New[registryEntry](),
		onEmpty: onEmpty,
	}
}

// Register adds a body or a half body, replacing any previous entry under
// the same id.
func (r *LocalRegistry) Register(b LocalBody) {
	e := registryEntry{receiver: b, kind: entryHalfBody}
	if body, ok := b.(*Body); ok {
		e.kind = entryBody
		e.internal = body.props.internal
	}
	r.entries.Set(b.ID().String(), e)
}

// RegisterForwarder replaces whatever was registered under id.
func (r *LocalRegistry) RegisterForwarder(id UniqueID, f *Forwarder) {
	r.entries.Set(id.String(), registryEntry{receiver: f, kind: entryForwarder})
}

// Unregister removes rcv if it is still the entry registered under its id.
// It reports whether something was removed, so unregistering twice is
// harmless.
func (r *LocalRegistry) Unregister(rcv Receiver) bool {
	var removed registryEntry
	ok := r.entries.RemoveCb(rcv.ID().String(), func(_ string, e registryEntry, exists bool) bool {
		if exists && e.receiver == rcv {
			removed = e
			return true
		}
		return false
	})
	if ok && removed.kind == entryBody && !removed.internal {
		r.checkEmpty()
	}
	return ok
}

// UnregisterID removes whatever is registered under id.
func (r *LocalRegistry) UnregisterID(id UniqueID) bool {
	e, ok := r.entries.Pop(id.String())
	if ok && e.kind == entryBody && !e.internal {
		r.checkEmpty()
	}
	return ok
}

func (r *LocalRegistry) checkEmpty() {
	if r.onEmpty != nil && r.ActiveCount() == 0 {
		r.onEmpty()
	}
}

// Lookup returns the receiver registered under id.
func (r *LocalRegistry) Lookup(id UniqueID) (Receiver, bool) {
	e, ok := r.entries.Get(id.String())
	if !ok {
		return nil, false
	}
	return e.receiver, true
}

// Body returns the active body registered under id, if any.
func (r *LocalRegistry) Body(id UniqueID) (*Body, bool) {
	e, ok := r.entries.Get(id.String())
	if !ok || e.kind != entryBody {
		return nil, false
	}
	return e.receiver.(*Body), true
}

// Locate makes the registry a Locator.
func (r *LocalRegistry) Locate(id UniqueID) (Receiver, error) {
	if rcv, ok := r.Lookup(id); ok {
		return rcv, nil
	}
	return nil, errors.Wrapf(ErrUnknownBody, "%s", id)
}

func (r *LocalRegistry) Len() int { return r.entries.Count() }

// ActiveCount counts the registered user bodies, leaving out half bodies,
// forwarders and internal bodies.
func (r *LocalRegistry) ActiveCount() int {
	n := 0
	for _, e := range r.entries.Items() {
		if e.kind == entryBody && !e.internal {
			n++
		}
	}
	return n
}

// Bodies returns the registered active bodies ordered by id.
func (r *LocalRegistry) Bodies() []*Body {
	var out []*Body
	for _, e := range r.entries.Items() {
		if e.kind == entryBody {
			out = append(out, e.receiver.(*Body))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out
}

// Snapshot returns the ids of every registered receiver.
func (r *LocalRegistry) Snapshot() []UniqueID {
	items := r.entries.Items()
	out := make([]UniqueID, 0, len(items))
	for _, e := range items {
		out = append(out, e.receiver.ID())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
