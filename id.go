// File: id.go
package activebody

import (
	"hash/fnv"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// UniqueID identifies a body (or half body) for its whole life, across
// migrations. It is a plain value and safe to use as a map key.
type UniqueID struct {
	Name string    `cbor:"1,keyasint"`
	UUID uuid.UUID `cbor:"2,keyasint"`
}

// NewUniqueID derives a fresh identifier from a name plus randomness.
func NewUniqueID(name string) UniqueID {
	return UniqueID{Name: name, UUID: uuid.New()}
}

func (id UniqueID) String() string {
	if id.Name == "" {
		return id.UUID.String()
	}
	return id.Name + "/" + id.UUID.String()
}

// IsZero reports whether id was never assigned.
func (id UniqueID) IsZero() bool {
	return id.UUID == uuid.Nil
}

// Hash returns a 32 bit FNV-1a hash of the identifier.
func (id UniqueID) Hash() uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id.String()))
	return h.Sum32()
}

// sequencer hands out the per-sender sequence numbers used to correlate
// replies with futures. Numbers start at the sender's hash shifted left so
// that two senders rarely share a range, and increase by one per call.
type sequencer struct {
	base    uint64
	counter atomic.Uint64
}

func newSequencer(id UniqueID) *sequencer {
	return &sequencer{base: uint64(id.Hash()) << 24}
}

func (s *sequencer) next() uint64 {
	return s.base + s.counter.Inc()
}
