// File: tags.go
package activebody

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CorrelationTagID names the tag injected on every outgoing request when
// tracing is on. Its data is a uuid string shared by a whole call chain.
const CorrelationTagID = "correlation"

// Tag is a piece of metadata carried by a request. Propagating tags are
// copied onto every request sent while the tagged request is being served.
type Tag struct {
	ID        string `cbor:"1,keyasint"`
	Data      any    `cbor:"2,keyasint"`
	Propagate bool   `cbor:"3,keyasint"`
}

// Tags is the set of tags of one request, keyed by tag id.
type Tags struct {
	mu   sync.RWMutex
	tags map[string]Tag
}

func NewTags(tags ...Tag) *Tags {
	t := &Tags{tags: make(map[string]Tag, len(tags))}
	for _, tag := range tags {
		t.tags[tag.ID] = tag
	}
	return t
}

// Add sets a tag, replacing any tag with the same id.
func (t *Tags) Add(tag Tag) {
	t.mu.Lock()
	t.tags[tag.ID] = tag
	t.mu.Unlock()
}

func (t *Tags) Get(id string) (Tag, bool) {
	if t == nil {
		return Tag{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	tag, ok := t.tags[id]
	return tag, ok
}

func (t *Tags) Has(id string) bool {
	_, ok := t.Get(id)
	return ok
}

func (t *Tags) Remove(id string) {
	t.mu.Lock()
	delete(t.tags, id)
	t.mu.Unlock()
}

func (t *Tags) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tags)
}

// List returns the tags ordered by id.
func (t *Tags) List() []Tag {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	out := make([]Tag, 0, len(t.tags))
	for _, tag := range t.tags {
		out = append(out, tag)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// applyTags copies the propagating tags of the request in service onto an
// outgoing request, without overriding tags the outgoing request already
// has, and injects a correlation tag when tracing is forced.
func applyTags(inService *Request, outgoing *Request, tracing bool) {
	if inService != nil && inService.Tags != nil {
		for _, tag := range inService.Tags.List() {
			if !tag.Propagate {
				continue
			}
			if outgoing.Tags == nil {
				outgoing.Tags = NewTags()
			}
			if !outgoing.Tags.Has(tag.ID) {
				outgoing.Tags.Add(tag)
			}
		}
	}
	if tracing {
		if outgoing.Tags == nil {
			outgoing.Tags = NewTags()
		}
		if !outgoing.Tags.Has(CorrelationTagID) {
			outgoing.Tags.Add(Tag{ID: CorrelationTagID, Data: uuid.NewString(), Propagate: true})
		}
	}
}

// TagMemory is a leased key/value store attached to tag ids, so that the
// bodies a tagged call chain goes through can share state keyed by the tag.
// Leases are clamped to the runtime's maximum and renewed on every access.
type TagMemory struct {
	maxLease time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*leasedMemory

	stopOnce sync.Once
	stop     chan struct{}
}

type leasedMemory struct {
	values  map[string]any
	lease   time.Duration
	expires time.Time
}

func newTagMemory(maxLease time.Duration) *TagMemory {
	return &TagMemory{
		maxLease: maxLease,
		now:      time.Now,
		entries:  make(map[string]*leasedMemory),
		stop:     make(chan struct{}),
	}
}

func (m *TagMemory) clamp(lease time.Duration) time.Duration {
	if lease <= 0 || lease > m.maxLease {
		return m.maxLease
	}
	return lease
}

// Put stores a value under a tag and renews the tag's lease.
func (m *TagMemory) Put(tagID, key string, value any, lease time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm, ok := m.entries[tagID]
	if !ok {
		lm = &leasedMemory{values: make(map[string]any)}
		m.entries[tagID] = lm
	}
	lm.lease = m.clamp(lease)
	lm.expires = m.now().Add(lm.lease)
	lm.values[key] = value
}

// Get returns a value stored under a tag and renews the lease.
func (m *TagMemory) Get(tagID, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm, ok := m.entries[tagID]
	if !ok {
		return nil, false
	}
	now := m.now()
	if now.After(lm.expires) {
		delete(m.entries, tagID)
		return nil, false
	}
	lm.expires = now.Add(lm.lease)
	v, ok := lm.values[key]
	return v, ok
}

// Release drops everything stored under a tag.
func (m *TagMemory) Release(tagID string) {
	m.mu.Lock()
	delete(m.entries, tagID)
	m.mu.Unlock()
}

func (m *TagMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops expired leases and returns how many were dropped.
func (m *TagMemory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	swept := 0
	for id, lm := range m.entries {
		if now.After(lm.expires) {
			delete(m.entries, id)
			swept++
		}
	}
	return swept
}

func (m *TagMemory) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Debug("swept tag memory", "count", n)
			}
		}
	}
}

func (m *TagMemory) close() {
	m.stopOnce.Do(func() { close(m.stop) })
}
