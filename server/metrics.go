package server

import "github.com/xmidt-org/hestia/xmetrics"

// Metric names maintained by the server assembly.  The listener metrics are
// labelled with the listener name, e.g. "primary" or "primary.secure".
const (
	ListenerRejectedConnections = "listener_rejected_connections"
	ListenerActiveConnections   = "listener_active_connections"
	WorkerPoolInUse             = "worker_pool_in_use"
	WorkerPoolFailures          = "worker_pool_failures"
	AccessLogDropped            = "access_log_dropped"
	GateClosed                  = "gate_closed"
)

// Metrics is the module function for this package
func Metrics() []xmetrics.Metric {
	return []xmetrics.Metric{
		{
			Name:       ListenerRejectedConnections,
			Type:       "counter",
			Help:       "the count of connections rejected due to the connection limit",
			LabelNames: []string{"listener"},
		},
		{
			Name:       ListenerActiveConnections,
			Type:       "gauge",
			Help:       "the instantaneous number of active connections",
			LabelNames: []string{"listener"},
		},
		{
			Name: WorkerPoolInUse,
			Type: "gauge",
			Help: "the instantaneous number of request workers in use",
		},
		{
			Name: WorkerPoolFailures,
			Type: "counter",
			Help: "the count of requests rejected because no worker was available",
		},
		{
			Name: AccessLogDropped,
			Type: "counter",
			Help: "the count of access log entries dropped due to a full queue",
		},
		{
			Name: GateClosed,
			Type: "gauge",
			Help: "set to 1 while the traffic gate is lowered",
		},
	}
}
