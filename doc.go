// File: doc.go

// Package activebody is an active object runtime.
//
// Every active object is backed by a Body: an identity, a request queue, a
// future pool and a goroutine that serves the queued requests one at a time.
// Objects are reached through Stubs. A call made through a stub is turned
// into a Request; a two-way call returns a Future that the reply resolves.
// Goroutines that are not serving a body are given a HalfBody the first
// time they call, so they can own futures too.
//
//	rt, err := activebody.NewRuntime(activebody.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer rt.Shutdown(time.Second)
//
//	counter, err := rt.NewActive(activebody.NewProps(func() any { return &Counter{} }))
//	if err != nil {
//		return err
//	}
//	f, err := counter.Call("Add", 2)
//	if err != nil {
//		return err
//	}
//	n, err := activebody.Await[int](ctx, f)
package activebody
