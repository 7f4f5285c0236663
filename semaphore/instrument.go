package semaphore

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics/discard"
	"github.com/xmidt-org/hestia/xmetrics"
)

// InstrumentOption represents a configurable option for instrumenting a semaphore
type InstrumentOption func(*instrumentedSemaphore)

// WithResources establishes a metric that tracks the resource count of the semaphore.
// If a nil adder is supplied, resource counts are discarded.
func WithResources(a xmetrics.Adder) InstrumentOption {
	return func(i *instrumentedSemaphore) {
		if a != nil {
			i.resources = a
		} else {
			i.resources = discard.NewCounter()
		}
	}
}

// WithFailures establishes a metric that tracks how many failed resource acquisitions
// happen.  If a nil adder is supplied, failure counts are discarded.
func WithFailures(a xmetrics.Adder) InstrumentOption {
	return func(i *instrumentedSemaphore) {
		if a != nil {
			i.failures = a
		} else {
			i.failures = discard.NewCounter()
		}
	}
}

// Instrument decorates an existing semaphore with a set of options.  If the
// decorated semaphore implements Pool, the returned semaphore does as well.
func Instrument(s Interface, o ...InstrumentOption) Interface {
	is := &instrumentedSemaphore{
		Interface: s,
		resources: discard.NewCounter(),
		failures:  discard.NewCounter(),
	}

	for _, f := range o {
		f(is)
	}

	if p, ok := s.(Pool); ok {
		return &instrumentedPool{instrumentedSemaphore: is, pool: p}
	}

	return is
}

type instrumentedSemaphore struct {
	Interface
	resources xmetrics.Adder
	failures  xmetrics.Adder
}

func (is *instrumentedSemaphore) Acquire() (err error) {
	err = is.Interface.Acquire()
	if err != nil {
		is.failures.Add(1.0)
	} else {
		is.resources.Add(1.0)
	}

	return
}

func (is *instrumentedSemaphore) AcquireWait(t <-chan time.Time) (err error) {
	err = is.Interface.AcquireWait(t)
	if err != nil {
		is.failures.Add(1.0)
	} else {
		is.resources.Add(1.0)
	}

	return
}

func (is *instrumentedSemaphore) AcquireCtx(ctx context.Context) (err error) {
	err = is.Interface.AcquireCtx(ctx)
	if err != nil {
		is.failures.Add(1.0)
	} else {
		is.resources.Add(1.0)
	}

	return
}

func (is *instrumentedSemaphore) TryAcquire() bool {
	if is.Interface.TryAcquire() {
		is.resources.Add(1.0)
		return true
	}

	is.failures.Add(1.0)
	return false
}

func (is *instrumentedSemaphore) Release() (err error) {
	err = is.Interface.Release()
	is.resources.Add(-1.0)
	return
}

// instrumentedPool preserves Pool visibility through instrumentation
type instrumentedPool struct {
	*instrumentedSemaphore
	pool Pool
}

func (ip *instrumentedPool) InUse() int {
	return ip.pool.InUse()
}

func (ip *instrumentedPool) Capacity() int {
	return ip.pool.Capacity()
}
