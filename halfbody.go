// File: halfbody.go
package activebody

import (
	"strconv"

	"github.com/pkg/errors"
)

// HalfBody stands for a goroutine that is not serving an active object but
// still sends requests and owns futures: the main goroutine, a test, a
// callback from a library. It receives replies and nothing else.
type HalfBody struct {
	rt        *Runtime
	id        UniqueID
	goroutine int64
	seq       *sequencer
	pool      *FuturePool
}

func newHalfBody(rt *Runtime, goroutine int64) *HalfBody {
	id := NewUniqueID("half-" + strconv.FormatInt(goroutine, 10))
	return &HalfBody{
		rt:        rt,
		id:        id,
		goroutine: goroutine,
		seq:       newSequencer(id),
		pool:      NewFuturePool(id),
	}
}

func (h *HalfBody) ID() UniqueID                     { return h.id }
func (h *HalfBody) Goroutine() int64                 { return h.goroutine }
func (h *HalfBody) IsActive() bool                   { return false }
func (h *HalfBody) FuturePool() (*FuturePool, error) { return h.pool, nil }
func (h *HalfBody) nextSeq() uint64                  { return h.seq.next() }
func (h *HalfBody) currentBehavior() behavior        { return halfBehavior{half: h} }

// ReceiveRequest always fails: a half body has nothing to serve with.
func (h *HalfBody) ReceiveRequest(req *Request) error {
	return errors.Wrapf(ErrHalfBody, "request %s for %s", req.Call.Name, h.id)
}

func (h *HalfBody) ReceiveReply(reply *Reply) error {
	for _, f := range reply.staged {
		h.pool.ReceiveFuture(f)
	}
	reply.staged = nil
	h.pool.ReceiveFutureValue(reply.Future, reply.Result)
	return nil
}
