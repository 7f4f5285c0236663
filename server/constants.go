package server

import "time"

const (
	// DefaultName is the server name when none is configured
	DefaultName = "hestia"

	// DefaultAddress is the bind address of the primary HTTP listener
	DefaultAddress = ":8080"

	// DefaultSecureAddress is the bind address of the primary HTTPS listener
	DefaultSecureAddress = ":8443"

	// DefaultAdminAddress is the bind address of the admin server, which hosts
	// the status, metrics, and deployment endpoints
	DefaultAdminAddress = ":8081"

	// DefaultPprofAddress is the bind address of the pprof server
	DefaultPprofAddress = ":6060"

	// DefaultMaxConnections is the per-listener connection limit
	DefaultMaxConnections = 500

	// DefaultMaxWorkers is the size of the request worker pool
	DefaultMaxWorkers = 500

	// DefaultShutdownTimeout is how long a draining server waits for in-flight
	// requests before giving up
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultMaxHeaderBytes is the request header size limit
	DefaultMaxHeaderBytes = 8192

	// DefaultIdleTimeout is the normal per-connection idle timeout
	DefaultIdleTimeout = 30 * time.Second

	// StatusPath is the admin endpoint that reports resource monitor status
	StatusPath = "/status"

	// MetricsPath is the admin endpoint that exposes prometheus metrics
	MetricsPath = "/metrics"

	// ContextsPath is the admin endpoint that lists deployed contexts
	ContextsPath = "/contexts"

	// FileFlagName is the name of the command-line flag for specifying an
	// alternate configuration file
	FileFlagName = "file"

	// FileFlagShorthand is the command-line shorthand for FileFlagName
	FileFlagShorthand = "f"
)
