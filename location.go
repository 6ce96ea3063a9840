// File: location.go
package activebody

import (
	cmp "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// Locator resolves an identifier to something requests can be delivered to.
type Locator interface {
	Locate(id UniqueID) (Receiver, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(id UniqueID) (Receiver, error)

func (f LocatorFunc) Locate(id UniqueID) (Receiver, error) { return f(id) }

// ChainLocators asks each locator in turn and returns the first hit.
func ChainLocators(locators ...Locator) Locator {
	return LocatorFunc(func(id UniqueID) (Receiver, error) {
		for _, l := range locators {
			if l == nil {
				continue
			}
			if rcv, err := l.Locate(id); err == nil {
				return rcv, nil
			}
		}
		return nil, errors.Wrapf(ErrUnknownBody, "%s", id)
	})
}

// LocationCache remembers where bodies were last seen. Entries may be
// stale: a caller that fails to deliver through a cached handle refreshes
// it and tries again.
type LocationCache struct {
	locator   Locator
	entries   cmp.ConcurrentMap[string, Receiver]
	sf        singleflight.Group
	refreshes atomic.Int64
}

func NewLocationCache(locator Locator) *LocationCache {
	return &LocationCache{
		locator: locator,
		entries: cmp.New[Receiver](),
	}
}

// Get returns the cached handle for id, resolving it on a miss.
func (c *LocationCache) Get(id UniqueID) (Receiver, error) {
	if rcv, ok := c.entries.Get(id.String()); ok {
		return rcv, nil
	}
	return c.Refresh(id)
}

// Refresh resolves id through the locator and caches the answer.
// Concurrent refreshes of one id share a single lookup.
func (c *LocationCache) Refresh(id UniqueID) (Receiver, error) {
	key := id.String()
	v, err, _ := c.sf.Do(key, func() (any, error) {
		c.refreshes.Inc()
		rcv, err := c.locator.Locate(id)
		if err != nil {
			c.entries.Remove(key)
			return nil, err
		}
		c.entries.Set(key, rcv)
		return rcv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Receiver), nil
}

// Update records a known location, typically after a migration.
func (c *LocationCache) Update(id UniqueID, rcv Receiver) {
	c.entries.Set(id.String(), rcv)
}

func (c *LocationCache) Invalidate(id UniqueID) {
	c.entries.Remove(id.String())
}

func (c *LocationCache) Len() int { return c.entries.Count() }

// Refreshes counts the lookups that reached the locator.
func (c *LocationCache) Refreshes() int64 { return c.refreshes.Load() }
