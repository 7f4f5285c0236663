package xmetrics

// Adder is a metric to which deltas can be added.  Go-kit's metrics.Counter
// and metrics.Gauge, along with several prometheus types, implement this.
type Adder interface {
	Add(float64)
}

// Setter is a metric that receives absolute values, typically a gauge
type Setter interface {
	Set(float64)
}

// Incrementer is an Adder restricted to increments of 1
type Incrementer interface {
	Inc()
}

type incrementerAdapter struct {
	Adder
}

func (ia incrementerAdapter) Inc() {
	ia.Add(1.0)
}

// NewIncrementer adapts an Adder onto the Incrementer interface.  A nil
// Adder is not permitted, callers substitute a discard metric instead.
func NewIncrementer(a Adder) Incrementer {
	return incrementerAdapter{a}
}
