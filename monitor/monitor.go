package monitor

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/xmidt-org/hestia/clock"
	"github.com/xmidt-org/hestia/gate"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/semaphore"
	"github.com/xmidt-org/hestia/xmetrics"
)

const (
	// DefaultPeriod is the sampling period used when none is configured
	DefaultPeriod = time.Second

	// DefaultIdleTimeout is the normal connection idle timeout
	DefaultIdleTimeout = 30 * time.Second

	// DefaultLowResourcesIdleTimeout is the shortened idle timeout applied while
	// the server is low on resources
	DefaultLowResourcesIdleTimeout = 200 * time.Millisecond

	// DefaultMaxLowResourcesTime is how long a low-resource state may persist
	// before the server's gate is lowered
	DefaultMaxLowResourcesTime = 5 * time.Second
)

// low-resource reasons reported in Status
const (
	ReasonWorkers    = "workers"
	ReasonGoroutines = "goroutines"
	ReasonMemory     = "memory"
	ReasonFreeMemory = "freeMemory"
)

// Options configures a low-resource Monitor
type Options struct {
	// Logger is the go-kit logger for monitor output.  If unset, logging.DefaultLogger() is used.
	Logger log.Logger

	// Clock is the time source.  If unset, clock.System() is used.
	Clock clock.Interface

	// Period is the sampling period.  Defaults to DefaultPeriod.
	Period time.Duration

	// IdleTimeout is the connection idle timeout reported under normal conditions.
	// Defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	// LowResourcesIdleTimeout is the idle timeout reported while low on resources.
	// Defaults to DefaultLowResourcesIdleTimeout.
	LowResourcesIdleTimeout time.Duration

	// MaxLowResourcesTime is how long a continuously low state is tolerated before
	// the Gate, if any, is lowered.  Defaults to DefaultMaxLowResourcesTime.
	MaxLowResourcesTime time.Duration

	// MaxMemory is the heap allocation, in bytes, beyond which the server is considered
	// low on resources.  A zero value disables this check.
	MaxMemory uint64

	// MinFreeMemory is the minimum system available memory, in bytes.  When the reported
	// available memory drops below this value, the server is considered low on resources.
	// A zero value disables this check.
	MinFreeMemory uint64

	// MaxGoroutines is the goroutine count beyond which the server is considered low
	// on resources.  A zero value disables this check.
	MaxGoroutines int

	// Workers is the request worker pool.  When every worker is in use, the server is
	// considered low on resources.  This field is optional.
	Workers semaphore.Pool

	// MemInfo reads system memory information.  Only consulted when MinFreeMemory is set.
	// If unset, a reader over the default /proc/meminfo location is used.
	MemInfo *MemInfoReader

	// Gate, if supplied, is lowered after MaxLowResourcesTime of continuous resource
	// pressure and raised again on recovery.
	Gate gate.Interface

	// LowGauge is set to 1 while the server is low on resources.  If unset, a discard gauge is used.
	LowGauge xmetrics.Setter

	// Transitions is incremented each time the server enters the low-resource state.
	// If unset, a discard counter is used.
	Transitions xmetrics.Adder
}

// Status is a point-in-time view of the monitor's samples and state.  It is the
// JSON document served by the monitor's HTTP endpoint.
type Status struct {
	Time           time.Time `json:"time"`
	LowOnResources bool      `json:"lowOnResources"`
	Reasons        []string  `json:"reasons,omitempty"`
	Goroutines     int       `json:"goroutines"`
	HeapAlloc      uint64    `json:"heapAlloc"`
	FreeMemory     uint64    `json:"freeMemory,omitempty"`
	WorkersInUse   int       `json:"workersInUse"`
	WorkerCapacity int       `json:"workerCapacity,omitempty"`
	IdleTimeout    string    `json:"idleTimeout"`
}

// Monitor periodically samples resource pressure and degrades service while the
// pressure lasts:  the reported idle timeout shrinks so that idle connections are
// culled quickly, and if the pressure persists past MaxLowResourcesTime the server's
// gate is lowered until recovery.
//
// Monitor implements xlistener.Timeouts via its IdleTimeout method.
type Monitor struct {
	logger      log.Logger
	clock       clock.Interface
	period      time.Duration
	normalIdle  time.Duration
	lowIdle     time.Duration
	maxLowTime  time.Duration
	maxMemory   uint64
	minFree     uint64
	maxRoutines int
	workers     semaphore.Pool
	memInfo     *MemInfoReader
	gate        gate.Interface
	lowGauge    xmetrics.Setter
	transitions xmetrics.Incrementer

	idleTimeout int64
	low         uint32
	status      atomic.Value

	// state below is only touched by the sampling goroutine
	lowSince    time.Time
	gateLowered bool

	once sync.Once
}

// New constructs a Monitor from a set of options.  The monitor does not begin
// sampling until Run is invoked.
func New(o Options) *Monitor {
	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}

	if o.Clock == nil {
		o.Clock = clock.System()
	}

	if o.Period <= 0 {
		o.Period = DefaultPeriod
	}

	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}

	if o.LowResourcesIdleTimeout <= 0 {
		o.LowResourcesIdleTimeout = DefaultLowResourcesIdleTimeout
	}

	if o.MaxLowResourcesTime <= 0 {
		o.MaxLowResourcesTime = DefaultMaxLowResourcesTime
	}

	if o.MemInfo == nil {
		o.MemInfo = new(MemInfoReader)
	}

	if o.LowGauge == nil {
		o.LowGauge = discard.NewGauge()
	}

	if o.Transitions == nil {
		o.Transitions = discard.NewCounter()
	}

	m := &Monitor{
		logger:      o.Logger,
		clock:       o.Clock,
		period:      o.Period,
		normalIdle:  o.IdleTimeout,
		lowIdle:     o.LowResourcesIdleTimeout,
		maxLowTime:  o.MaxLowResourcesTime,
		maxMemory:   o.MaxMemory,
		minFree:     o.MinFreeMemory,
		maxRoutines: o.MaxGoroutines,
		workers:     o.Workers,
		memInfo:     o.MemInfo,
		gate:        o.Gate,
		lowGauge:    o.LowGauge,
		transitions: xmetrics.NewIncrementer(o.Transitions),
	}

	atomic.StoreInt64(&m.idleTimeout, int64(m.normalIdle))
	m.lowGauge.Set(0.0)
	return m
}

// IdleTimeout returns the idle timeout that should currently be applied to connections.
// This method is safe for concurrent use and is intended to be supplied to xlistener
// as the Timeouts source.
func (m *Monitor) IdleTimeout() time.Duration {
	return time.Duration(atomic.LoadInt64(&m.idleTimeout))
}

// LowOnResources tests whether the server is currently considered low on resources
func (m *Monitor) LowOnResources() bool {
	return atomic.LoadUint32(&m.low) != 0
}

// Status returns the most recent sample.  Prior to the first sample, a zero Status is returned.
func (m *Monitor) Status() Status {
	if v, ok := m.status.Load().(Status); ok {
		return v
	}

	return Status{}
}

// sample takes a point-in-time measurement of resource pressure
func (m *Monitor) sample(now time.Time) Status {
	s := Status{
		Time:       now,
		Goroutines: runtime.NumGoroutine(),
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	s.HeapAlloc = memStats.Alloc

	if m.minFree > 0 {
		if memInfo, err := m.memInfo.Read(); err == nil {
			s.FreeMemory = memInfo.MemAvailable * 1024
		}
	}

	if m.workers != nil {
		s.WorkersInUse = m.workers.InUse()
		s.WorkerCapacity = m.workers.Capacity()
		if s.WorkersInUse >= s.WorkerCapacity {
			s.Reasons = append(s.Reasons, ReasonWorkers)
		}
	}

	if m.maxRoutines > 0 && s.Goroutines > m.maxRoutines {
		s.Reasons = append(s.Reasons, ReasonGoroutines)
	}

	if m.maxMemory > 0 && s.HeapAlloc > m.maxMemory {
		s.Reasons = append(s.Reasons, ReasonMemory)
	}

	if m.minFree > 0 && s.FreeMemory > 0 && s.FreeMemory < m.minFree {
		s.Reasons = append(s.Reasons, ReasonFreeMemory)
	}

	s.LowOnResources = len(s.Reasons) > 0
	return s
}

// apply transitions the monitor's state based on a sample.  This method is not safe
// for concurrent use:  only the sampling goroutine (or a test) may invoke it.
func (m *Monitor) apply(s Status) {
	if s.LowOnResources {
		if atomic.CompareAndSwapUint32(&m.low, 0, 1) {
			m.lowSince = s.Time
			m.transitions.Inc()
			m.lowGauge.Set(1.0)
			atomic.StoreInt64(&m.idleTimeout, int64(m.lowIdle))
			m.logger.Log(level.Key(), level.WarnValue(),
				logging.MessageKey(), "low on resources",
				"reasons", s.Reasons,
				"idleTimeout", m.lowIdle,
			)
		} else if m.gate != nil && !m.gateLowered && s.Time.Sub(m.lowSince) >= m.maxLowTime {
			m.gateLowered = true
			m.gate.Lower()
			m.logger.Log(level.Key(), level.ErrorValue(),
				logging.MessageKey(), "low on resources beyond the configured limit.  shedding traffic",
				"since", m.lowSince,
			)
		}
	} else if atomic.CompareAndSwapUint32(&m.low, 1, 0) {
		m.lowGauge.Set(0.0)
		atomic.StoreInt64(&m.idleTimeout, int64(m.normalIdle))
		if m.gateLowered {
			m.gateLowered = false
			m.gate.Raise()
		}

		m.logger.Log(level.Key(), level.InfoValue(),
			logging.MessageKey(), "resource pressure cleared",
			"idleTimeout", m.normalIdle,
		)
	}

	s.IdleTimeout = m.IdleTimeout().String()
	m.status.Store(s)
}

// Run starts the sampling goroutine.  This method is idempotent.
func (m *Monitor) Run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) error {
	m.once.Do(func() {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			ticker := m.clock.NewTicker(m.period)
			defer ticker.Stop()

			m.apply(m.sample(m.clock.Now()))
			for {
				select {
				case <-shutdown:
					return
				case t := <-ticker.C():
					m.apply(m.sample(t))
				}
			}
		}()
	})

	return nil
}

// ServeHTTP reports the most recent Status as JSON
func (m *Monitor) ServeHTTP(response http.ResponseWriter, _ *http.Request) {
	response.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(response).Encode(m.Status()); err != nil {
		m.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "unable to marshal status", logging.ErrorKey(), err)
	}
}
