package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xmidt-org/hestia/xmetrics"
)

// Metric names maintained by this package.  All request metrics are labelled
// with the response code and request method.
const (
	RequestsInFlight = "requests_in_flight"
	RequestCount     = "requests_total"
	RequestDuration  = "request_duration_seconds"
	ResponseSize     = "response_size_bytes"
)

// Metrics is the module function for this package
func Metrics() []xmetrics.Metric {
	return []xmetrics.Metric{
		{
			Name: RequestsInFlight,
			Type: "gauge",
			Help: "the instantaneous number of requests currently being served",
		},
		{
			Name:       RequestCount,
			Type:       "counter",
			Help:       "the total count of requests received",
			LabelNames: []string{"code", "method"},
		},
		{
			Name:       RequestDuration,
			Type:       "histogram",
			Help:       "the request duration in seconds",
			LabelNames: []string{"code", "method"},
			Buckets:    []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		{
			Name:       ResponseSize,
			Type:       "histogram",
			Help:       "the response size in bytes",
			LabelNames: []string{"code", "method"},
			Buckets:    []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		},
	}
}

// Handler produces an Alice-style constructor that records request statistics
// into the given registry, which must have been created with this package's
// Metrics module.
func Handler(registry xmetrics.Registry) func(http.Handler) http.Handler {
	var (
		inFlight     = registry.NewGaugeVec(RequestsInFlight).WithLabelValues()
		requests     = registry.NewCounterVec(RequestCount)
		duration     = registry.NewHistogramVec(RequestDuration)
		responseSize = registry.NewHistogramVec(ResponseSize)
	)

	return func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerInFlight(
			inFlight,
			promhttp.InstrumentHandlerCounter(
				requests,
				promhttp.InstrumentHandlerDuration(
					duration,
					promhttp.InstrumentHandlerResponseSize(responseSize, next),
				),
			),
		)
	}
}
