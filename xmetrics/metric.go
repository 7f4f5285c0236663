package xmetrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	CounterType   = "counter"
	GaugeType     = "gauge"
	HistogramType = "histogram"
	SummaryType   = "summary"
)

// Module is a function type that returns prebuilt metrics.  Each package in
// this module that maintains metrics exposes a Metrics function of this type,
// and a Registry is assembled from those modules.
type Module func() []Metric

// Metric is a declarative description of a single preregistered metric.  It
// loosely corresponds to the Prometheus Opts structs.
type Metric struct {
	// Name is the required metric name
	Name string

	// Type is the required metric type, one of the type constants in this package
	Type string

	// Namespace overrides the enclosing Options' Namespace when set
	Namespace string

	// Subsystem overrides the enclosing Options' Subsystem when set
	Subsystem string

	// Help is the metric help text.  The metric name is used when unset.
	Help string

	// ConstLabels are labels applied to every observation of this metric
	ConstLabels map[string]string

	// LabelNames are the variable label names for this metric
	LabelNames []string

	// Buckets holds the observation buckets for a histogram.  Ignored for
	// other metric types.
	Buckets []float64

	// Objectives holds the quantile objectives for a summary.  Ignored for
	// other metric types.
	Objectives map[float64]float64
}

func (m Metric) opts() (namespace, subsystem, help string) {
	namespace, subsystem, help = m.Namespace, m.Subsystem, m.Help
	if len(namespace) == 0 {
		namespace = DefaultNamespace
	}

	if len(subsystem) == 0 {
		subsystem = DefaultSubsystem
	}

	if len(help) == 0 {
		help = m.Name
	}

	return
}

// NewCollector builds the Prometheus vector collector described by a Metric.
// The name is required; namespace, subsystem, and help take defaults when unset.
func NewCollector(m Metric) (prometheus.Collector, error) {
	if len(m.Name) == 0 {
		return nil, errors.New("A name is required for a metric")
	}

	namespace, subsystem, help := m.opts()

	switch m.Type {
	case CounterType:
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        m.Name,
			Help:        help,
			ConstLabels: prometheus.Labels(m.ConstLabels),
		}, m.LabelNames), nil

	case GaugeType:
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        m.Name,
			Help:        help,
			ConstLabels: prometheus.Labels(m.ConstLabels),
		}, m.LabelNames), nil

	case HistogramType:
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        m.Name,
			Help:        help,
			ConstLabels: prometheus.Labels(m.ConstLabels),
			Buckets:     m.Buckets,
		}, m.LabelNames), nil

	case SummaryType:
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        m.Name,
			Help:        help,
			ConstLabels: prometheus.Labels(m.ConstLabels),
			Objectives:  m.Objectives,
		}, m.LabelNames), nil

	default:
		return nil, fmt.Errorf("Unsupported metric type: %s", m.Type)
	}
}
