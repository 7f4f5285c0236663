package deploy

import "github.com/xmidt-org/hestia/xmetrics"

const (
	// DeployedContexts is the gauge holding the count of currently deployed contexts
	DeployedContexts = "deployed_contexts"

	// DeployFailures counts descriptors that failed to deploy
	DeployFailures = "deploy_failures"
)

// Metrics is the module function for this package
func Metrics() []xmetrics.Metric {
	return []xmetrics.Metric{
		{
			Name: DeployedContexts,
			Type: "gauge",
			Help: "the count of currently deployed contexts",
		},
		{
			Name: DeployFailures,
			Type: "counter",
			Help: "the count of descriptors that failed to deploy",
		},
	}
}
