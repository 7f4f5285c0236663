package xmetrics

import (
	"errors"
	"fmt"

	"github.com/go-kit/kit/metrics"
	gokitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-kit/kit/metrics/provider"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultNamespace = "hestia"
	DefaultSubsystem = "server"
)

// Options is the configurable options for creating a Prometheus registry
type Options struct {
	// Namespace is the global default namespace for metrics which don't define a namespace.
	// If not supplied, DefaultNamespace is used.
	Namespace string

	// Subsystem is the global default subsystem for metrics which don't define a subsystem.
	// If not supplied, DefaultSubsystem is used.
	Subsystem string

	// Pedantic indicates whether the registry is created via NewPedanticRegistry().  By default, this is false.
	// Set to true for testing or development.
	Pedantic bool

	// DisableGoCollector controls whether the Go Collector is registered with the Registry.
	DisableGoCollector bool

	// DisableProcessCollector controls whether the Process Collector is registered with the Registry.
	DisableProcessCollector bool

	// Metrics defines an extra set of predefined metrics, beyond those supplied as modules
	// to NewRegistry.  This field is optional.
	Metrics []Metric
}

func (o *Options) namespace() string {
	if o != nil && len(o.Namespace) > 0 {
		return o.Namespace
	}

	return DefaultNamespace
}

func (o *Options) subsystem() string {
	if o != nil && len(o.Subsystem) > 0 {
		return o.Subsystem
	}

	return DefaultSubsystem
}

func (o *Options) pedantic() bool {
	return o != nil && o.Pedantic
}

// Module acts as a metrics module function for the (normally) configured metrics.
func (o *Options) Module() []Metric {
	if o != nil {
		return o.Metrics
	}

	return nil
}

// Registry is the core abstraction for this package.  It is a Prometheus registry and a
// go-kit metrics.Provider all in one.
//
// The Provider implementation returns go-kit wrappers around the predefined prometheus
// metric with the same name.  Requesting a metric that was not preregistered results in a panic:
// unlike ad hoc metrics, a misspelled metric name is a programming error.
type Registry interface {
	provider.Provider
	prometheus.Gatherer
	prometheus.Registerer

	// NewCounterVec returns the preregistered prometheus CounterVec with the given name
	NewCounterVec(string) *prometheus.CounterVec

	// NewGaugeVec returns the preregistered prometheus GaugeVec with the given name
	NewGaugeVec(string) *prometheus.GaugeVec

	// NewHistogramVec returns the preregistered prometheus HistogramVec with the given name
	NewHistogramVec(string) *prometheus.HistogramVec
}

// registry is the internal Registry implementation
type registry struct {
	*prometheus.Registry
	cache map[string]prometheus.Collector
}

func (r *registry) collector(name string) prometheus.Collector {
	c, ok := r.cache[name]
	if !ok {
		panic(fmt.Errorf("No such metric: %s", name))
	}

	return c
}

func (r *registry) NewCounterVec(name string) *prometheus.CounterVec {
	if v, ok := r.collector(name).(*prometheus.CounterVec); ok {
		return v
	}

	panic(fmt.Errorf("The metric %s is not a counter", name))
}

func (r *registry) NewCounter(name string) metrics.Counter {
	return gokitprometheus.NewCounter(r.NewCounterVec(name))
}

func (r *registry) NewGaugeVec(name string) *prometheus.GaugeVec {
	if v, ok := r.collector(name).(*prometheus.GaugeVec); ok {
		return v
	}

	panic(fmt.Errorf("The metric %s is not a gauge", name))
}

func (r *registry) NewGauge(name string) metrics.Gauge {
	return gokitprometheus.NewGauge(r.NewGaugeVec(name))
}

func (r *registry) NewHistogramVec(name string) *prometheus.HistogramVec {
	if v, ok := r.collector(name).(*prometheus.HistogramVec); ok {
		return v
	}

	panic(fmt.Errorf("The metric %s is not a histogram", name))
}

// NewHistogram will return a go-kit Histogram for either a summary or a histogram.
// The bucket count is ignored, as all metrics must be preregistered.
func (r *registry) NewHistogram(name string, _ int) metrics.Histogram {
	switch vec := r.collector(name).(type) {
	case *prometheus.HistogramVec:
		return gokitprometheus.NewHistogram(vec)
	case *prometheus.SummaryVec:
		return gokitprometheus.NewSummary(vec)
	default:
		panic(fmt.Errorf("The metric %s is not a histogram or summary", name))
	}
}

func (r *registry) Stop() {
}

// NewRegistry constructs a Registry from options and zero or more metric modules.
// Duplicate metric names across modules are an error, as are empty names and
// unsupported metric types.
func NewRegistry(o *Options, modules ...Module) (Registry, error) {
	var pr *prometheus.Registry
	if o.pedantic() {
		pr = prometheus.NewPedanticRegistry()
	} else {
		pr = prometheus.NewRegistry()
	}

	if o == nil || !o.DisableGoCollector {
		pr.MustRegister(prometheus.NewGoCollector())
	}

	if o == nil || !o.DisableProcessCollector {
		pr.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{
			Namespace: o.namespace(),
		}))
	}

	r := &registry{
		Registry: pr,
		cache:    make(map[string]prometheus.Collector),
	}

	for _, module := range append(modules, o.Module) {
		for _, m := range module() {
			if len(m.Name) == 0 {
				return nil, errors.New("Metric names cannot be empty")
			}

			if _, ok := r.cache[m.Name]; ok {
				return nil, fmt.Errorf("Duplicate metric: %s", m.Name)
			}

			if len(m.Namespace) == 0 {
				m.Namespace = o.namespace()
			}

			if len(m.Subsystem) == 0 {
				m.Subsystem = o.subsystem()
			}

			c, err := NewCollector(m)
			if err != nil {
				return nil, err
			}

			if err := pr.Register(c); err != nil {
				return nil, err
			}

			r.cache[m.Name] = c
		}
	}

	return r, nil
}
