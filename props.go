// File: props.go
package activebody

// Producer creates the target object of an active body. It runs on the
// body's serving goroutine.
type Producer func() any

// Props configures a body before it is created.
type Props struct {
	producer  Producer
	name      string
	policy    Policy
	immediate map[string]bool
	noACs     bool
	internal  bool
}

// NewProps creates Props with the given producer. It panics when producer
// is nil.
func NewProps(producer Producer) *Props {
	if producer == nil {
		panic("activebody: producer cannot be nil")
	}
	return &Props{
		producer:  producer,
		immediate: make(map[string]bool),
	}
}

// Produce calls the producer.
func (p *Props) Produce() any {
	return p.producer()
}

// WithName sets the name part of the body's identifier.
func (p *Props) WithName(name string) *Props {
	p.name = name
	return p
}

// WithPolicy replaces the FIFO ordering of the body's queue.
func (p *Props) WithPolicy(policy Policy) *Props {
	p.policy = policy
	return p
}

// WithImmediateService serves method on the delivering goroutine, or on a
// single dedicated goroutine when uniqueGoroutine is set.
func (p *Props) WithImmediateService(method string, uniqueGoroutine bool) *Props {
	p.immediate[method] = uniqueGoroutine
	return p
}

// WithoutACs disables automatic continuations in the body's future pool.
func (p *Props) WithoutACs() *Props {
	p.noACs = true
	return p
}

// Internal marks the body as runtime plumbing: it does not count when the
// runtime checks for an empty registry.
func (p *Props) Internal() *Props {
	p.internal = true
	return p
}

func (p *Props) displayName() string {
	if p.name != "" {
		return p.name
	}
	return "body"
}
