// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/xmetrics"
)

// RewriteConfiguration is a single path rewriting rule applied to primary requests
type RewriteConfiguration struct {
	// Pattern is the regular expression matched against the URL path
	Pattern string `json:"pattern"`

	// Replacement is the replacement path, which may refer to capture groups
	Replacement string `json:"replacement"`
}

// RedirectConfiguration is a single redirect rule applied to primary requests
type RedirectConfiguration struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`

	// Code is the redirect status code.  A nonpositive value means a temporary redirect.
	Code int `json:"code"`
}

// AccessLogConfiguration configures the asynchronous access log
type AccessLogConfiguration struct {
	// File is the access log file.  If unset, no access log is kept.
	File string `json:"file"`

	// MaxSize is the lumberjack MaxSize, in megabytes
	MaxSize int `json:"maxsize"`

	// MaxAge is the lumberjack MaxAge, in days
	MaxAge int `json:"maxage"`

	// MaxBackups is the lumberjack MaxBackups
	MaxBackups int `json:"maxbackups"`

	// QueueSize is the pending entry queue capacity
	QueueSize int `json:"queueSize"`

	// Cookies controls whether request cookies are recorded
	Cookies bool `json:"cookies"`
}

// RealmConfiguration configures the authentication realm guarding the admin server
type RealmConfiguration struct {
	// Name is the realm name used in WWW-Authenticate challenges
	Name string `json:"name"`

	// File is the realm properties file
	File string `json:"file"`

	// Role, if set, is the role required to access the admin server
	Role string `json:"role"`

	// RefreshInterval is how often the properties file is checked for changes
	RefreshInterval time.Duration `json:"refreshInterval"`
}

// MonitorConfiguration configures the low-resource monitor
type MonitorConfiguration struct {
	Period                  time.Duration `json:"period"`
	LowResourcesIdleTimeout time.Duration `json:"lowResourcesIdleTimeout"`
	MaxLowResourcesTime     time.Duration `json:"maxLowResourcesTime"`

	// MaxMemory is the heap allocation limit, in bytes.  Zero disables the check.
	MaxMemory uint64 `json:"maxMemory"`

	// MinFreeMemory is the minimum system available memory, in bytes.  Zero disables the check.
	MinFreeMemory uint64 `json:"minFreeMemory"`

	// MaxGoroutines is the goroutine count limit.  Zero disables the check.
	MaxGoroutines int `json:"maxGoroutines"`
}

// DeployConfiguration configures hot deployment
type DeployConfiguration struct {
	// Directory is the directory monitored for context descriptors
	Directory string `json:"directory"`

	// Pattern is the file name glob for descriptors
	Pattern string `json:"pattern"`

	ScanInterval time.Duration `json:"scanInterval"`
	QuietPeriod  time.Duration `json:"quietPeriod"`
}

// Configuration is the unmarshalled server configuration
type Configuration struct {
	// Name is the human-readable server name used in logging
	Name string `json:"name"`

	// Address is the bind address of the primary HTTP listener.  Defaults to DefaultAddress.
	Address string `json:"address"`

	// SecureAddress is the bind address of the primary HTTPS listener.  The HTTPS
	// listener is only started when CertificateFile and KeyFile are both set.
	SecureAddress string `json:"secureAddress"`

	// CertificateFile and KeyFile hold the server certificate for the HTTPS listener.
	// Both files must exist at startup.
	CertificateFile string `json:"certificateFile"`
	KeyFile         string `json:"keyFile"`

	// AdminAddress is the bind address of the admin server.  Defaults to DefaultAdminAddress.
	AdminAddress string `json:"adminAddress"`

	// PprofAddress is the bind address of the pprof server.  Defaults to DefaultPprofAddress.
	PprofAddress string `json:"pprofAddress"`

	// MaxConnections limits concurrent connections on each primary listener.
	// Defaults to DefaultMaxConnections.  A negative value removes the limit.
	MaxConnections int `json:"maxConnections"`

	// MaxWorkers limits concurrently serviced requests.  Requests beyond the limit
	// receive a 503.  Defaults to DefaultMaxWorkers.
	MaxWorkers int `json:"maxWorkers"`

	// MaxHeaderBytes limits request header sizes.  Defaults to DefaultMaxHeaderBytes.
	MaxHeaderBytes int `json:"maxHeaderBytes"`

	// IdleTimeout is the normal per-connection idle timeout.  Defaults to DefaultIdleTimeout.
	// The resource monitor shortens the effective timeout under pressure.
	IdleTimeout time.Duration `json:"idleTimeout"`

	ReadTimeout       time.Duration `json:"readTimeout"`
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout"`
	WriteTimeout      time.Duration `json:"writeTimeout"`

	DisableKeepAlives bool `json:"disableKeepAlives"`

	// ShutdownTimeout is how long draining servers wait for in-flight requests.
	// Defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`

	Deploy    DeployConfiguration    `json:"deploy"`
	AccessLog AccessLogConfiguration `json:"accessLog"`
	Monitor   MonitorConfiguration   `json:"monitor"`

	// Realm, if present, guards the admin server with HTTP Basic authentication
	Realm *RealmConfiguration `json:"realm"`

	Rewrites  []RewriteConfiguration  `json:"rewrites"`
	Redirects []RedirectConfiguration `json:"redirects"`

	// Log configures this server's logging
	Log *logging.Options `json:"log"`

	// Metrics configures the prometheus registry
	Metrics *xmetrics.Options `json:"metrics"`
}

func (c *Configuration) name() string {
	if c != nil && len(c.Name) > 0 {
		return c.Name
	}

	return DefaultName
}

func (c *Configuration) address() string {
	if c != nil && len(c.Address) > 0 {
		return c.Address
	}

	return DefaultAddress
}

func (c *Configuration) secure() bool {
	return c != nil && len(c.CertificateFile) > 0 && len(c.KeyFile) > 0
}

func (c *Configuration) secureAddress() string {
	if c != nil && len(c.SecureAddress) > 0 {
		return c.SecureAddress
	}

	return DefaultSecureAddress
}

func (c *Configuration) adminAddress() string {
	if c != nil && len(c.AdminAddress) > 0 {
		return c.AdminAddress
	}

	return DefaultAdminAddress
}

func (c *Configuration) pprofAddress() string {
	if c != nil && len(c.PprofAddress) > 0 {
		return c.PprofAddress
	}

	return DefaultPprofAddress
}

func (c *Configuration) maxConnections() int {
	switch {
	case c == nil || c.MaxConnections == 0:
		return DefaultMaxConnections
	case c.MaxConnections < 0:
		return 0
	default:
		return c.MaxConnections
	}
}

func (c *Configuration) maxWorkers() int {
	if c != nil && c.MaxWorkers > 0 {
		return c.MaxWorkers
	}

	return DefaultMaxWorkers
}

func (c *Configuration) shutdownTimeout() time.Duration {
	if c != nil && c.ShutdownTimeout > 0 {
		return c.ShutdownTimeout
	}

	return DefaultShutdownTimeout
}

func (c *Configuration) maxHeaderBytes() int {
	if c != nil && c.MaxHeaderBytes > 0 {
		return c.MaxHeaderBytes
	}

	return DefaultMaxHeaderBytes
}

func (c *Configuration) idleTimeout() time.Duration {
	if c != nil && c.IdleTimeout > 0 {
		return c.IdleTimeout
	}

	return DefaultIdleTimeout
}

// Unmarshal reads a Configuration from a viper instance.  Duration fields may be
// given as strings, e.g. "30s".
func Unmarshal(v *viper.Viper) (*Configuration, error) {
	c := new(Configuration)
	err := v.Unmarshal(c, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))

	if err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal configuration")
	}

	return c, nil
}
