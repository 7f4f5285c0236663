package gate

import (
	"sync/atomic"

	"github.com/go-kit/kit/metrics/discard"
	"github.com/xmidt-org/hestia/xmetrics"
)

const (
	open uint32 = iota
	closed
)

// Interface is a concurrent condition gating whether HTTP traffic is allowed.
// The low-resource monitor lowers the server's gate when the process has been
// starved past its configured grace period, and raises it again on recovery.
type Interface interface {
	// Raise opens this gate, allowing traffic through decorated handlers.
	// Gates start open unless constructed with WithInitiallyClosed.
	Raise()

	// Lower closes this gate.  Traffic that would otherwise reach a decorated
	// handler receives the configured refusal response instead.
	Lower()

	// IsOpen tests if this gate is open
	IsOpen() bool
}

// Option is a configuration option for a gate
type Option func(*gate)

// WithInitiallyClosed causes the new gate to start in the closed state
func WithInitiallyClosed() Option {
	return func(g *gate) {
		g.state = closed
	}
}

// WithClosedGauge supplies the gauge tracking this gate's state, 1 while
// closed and 0 while open.  A nil gauge restores the discard default.
func WithClosedGauge(gauge xmetrics.Setter) Option {
	return func(g *gate) {
		if gauge != nil {
			g.closedGauge = gauge
		} else {
			g.closedGauge = discard.NewGauge()
		}
	}
}

type gate struct {
	state       uint32
	closedGauge xmetrics.Setter
}

// New constructs a gate from zero or more options.  The default gate starts
// open and discards its state metric.
func New(options ...Option) Interface {
	g := &gate{
		state:       open,
		closedGauge: discard.NewGauge(),
	}

	for _, o := range options {
		o(g)
	}

	g.mark()
	return g
}

// mark publishes the current state to the closed gauge
func (g *gate) mark() {
	if atomic.LoadUint32(&g.state) == open {
		g.closedGauge.Set(0.0)
	} else {
		g.closedGauge.Set(1.0)
	}
}

func (g *gate) Raise() {
	if atomic.CompareAndSwapUint32(&g.state, closed, open) {
		g.mark()
	}
}

func (g *gate) Lower() {
	if atomic.CompareAndSwapUint32(&g.state, open, closed) {
		g.mark()
	}
}

func (g *gate) IsOpen() bool {
	return atomic.LoadUint32(&g.state) == open
}
