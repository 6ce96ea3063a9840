// File: behavior.go
package activebody

// behavior is the part of a local body that changes with its state. Active
// bodies have a queue and a pool; terminated bodies have neither (or only a
// draining pool); half bodies have a pool but nothing to serve.
// Unavailable parts are reported as errors.
type behavior interface {
	futurePool() (*FuturePool, error)
	requestQueue() (*RequestQueue, error)
	serve(req *Request) error
	sendRequest(inService *Request, dest Receiver, call MethodCall, oneWay bool) (*Future, error)
}

type activeBehavior struct {
	body  *Body
	queue *RequestQueue
	pool  *FuturePool
}

func (a activeBehavior) futurePool() (*FuturePool, error)     { return a.pool, nil }
func (a activeBehavior) requestQueue() (*RequestQueue, error) { return a.queue, nil }

func (a activeBehavior) serve(req *Request) error {
	return a.body.serveExclusive(req)
}

func (a activeBehavior) sendRequest(inService *Request, dest Receiver, call MethodCall, oneWay bool) (*Future, error) {
	return a.body.rt.sendRequest(a.body, a.pool, inService, dest, call, oneWay)
}

// inactiveBehavior is used once a body left the active state. pool is
// non-nil while pending automatic continuations drain.
type inactiveBehavior struct {
	body *Body
	pool *FuturePool
}

func (i inactiveBehavior) futurePool() (*FuturePool, error) {
	if i.pool == nil {
		return nil, ErrInactiveBody
	}
	return i.pool, nil
}

func (i inactiveBehavior) requestQueue() (*RequestQueue, error) { return nil, ErrInactiveBody }
func (i inactiveBehavior) serve(*Request) error                 { return ErrInactiveBody }

func (i inactiveBehavior) sendRequest(inService *Request, dest Receiver, call MethodCall, oneWay bool) (*Future, error) {
	if oneWay {
		return i.body.rt.sendRequest(i.body, nil, inService, dest, call, true)
	}
	pool, err := i.futurePool()
	if err != nil {
		return nil, err
	}
	return i.body.rt.sendRequest(i.body, pool, inService, dest, call, false)
}

type halfBehavior struct {
	half *HalfBody
}

func (h halfBehavior) futurePool() (*FuturePool, error)     { return h.half.pool, nil }
func (h halfBehavior) requestQueue() (*RequestQueue, error) { return nil, ErrHalfBody }
func (h halfBehavior) serve(*Request) error                 { return ErrHalfBody }

func (h halfBehavior) sendRequest(inService *Request, dest Receiver, call MethodCall, oneWay bool) (*Future, error) {
	return h.half.rt.sendRequest(h.half, h.half.pool, inService, dest, call, oneWay)
}
