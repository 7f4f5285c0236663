package monitor

import "github.com/xmidt-org/hestia/xmetrics"

const (
	// LowResourcesState is the gauge set to 1 while the server is low on resources
	LowResourcesState = "low_resources_state"

	// LowResourcesTransitions counts entries into the low-resource state
	LowResourcesTransitions = "low_resources_transitions"
)

// Metrics is the module function for this package
func Metrics() []xmetrics.Metric {
	return []xmetrics.Metric{
		{
			Name: LowResourcesState,
			Type: "gauge",
			Help: "set to 1 while the server is low on resources",
		},
		{
			Name: LowResourcesTransitions,
			Type: "counter",
			Help: "the count of entries into the low-resource state",
		},
	}
}
