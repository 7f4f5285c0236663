// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net"
	"net/http"
	_ "net/http/pprof" // registers the pprof handlers served by the pprof server

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xmidt-org/hestia/deploy"
	"github.com/xmidt-org/hestia/gate"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/monitor"
	"github.com/xmidt-org/hestia/realm"
	"github.com/xmidt-org/hestia/requestlog"
	"github.com/xmidt-org/hestia/rewrite"
	"github.com/xmidt-org/hestia/semaphore"
	"github.com/xmidt-org/hestia/stats"
	"github.com/xmidt-org/hestia/xhttp"
	"github.com/xmidt-org/hestia/xlistener"
	"github.com/xmidt-org/hestia/xmetrics"
)

// Builder assembles a complete Server from a Configuration.  The zero value of
// every field except Configuration is usable:  a Logger is built from the
// configuration's log options and a Registry from its metrics options.
type Builder struct {
	// Configuration is the unmarshalled server configuration.  The deploy
	// directory is the only required setting.
	Configuration *Configuration

	// Logger is the root go-kit logger.  If unset, one is built from Configuration.Log.
	Logger log.Logger

	// Registry is the metrics registry.  If unset, one is built from Configuration.Metrics
	// together with the metric modules of every component this package wires in.
	Registry xmetrics.Registry
}

func (b *Builder) logger() log.Logger {
	if b.Logger != nil {
		return b.Logger
	}

	var o *logging.Options
	if b.Configuration != nil {
		o = b.Configuration.Log
	}

	return logging.New(o)
}

func (b *Builder) registry() (xmetrics.Registry, error) {
	if b.Registry != nil {
		return b.Registry, nil
	}

	var o *xmetrics.Options
	if b.Configuration != nil {
		o = b.Configuration.Metrics
	}

	return xmetrics.NewRegistry(o,
		Metrics,
		stats.Metrics,
		monitor.Metrics,
		deploy.Metrics,
	)
}

// rules builds the rewriting rules applied to primary traffic.  Every server
// validates URL paths and collapses repeated slashes; the configured rewrites
// and redirects follow.
func (b *Builder) rules() ([]rewrite.Rule, error) {
	c := b.Configuration
	rules := []rewrite.Rule{
		rewrite.ValidURL(),
		rewrite.CompactPath(),
		rewrite.LegacyTLSClose(),
	}

	for _, rc := range c.Redirects {
		rule, err := rewrite.Redirect(rc.Pattern, rc.Replacement, rc.Code)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	for _, rc := range c.Rewrites {
		rule, err := rewrite.PathRewrite(rc.Pattern, rc.Replacement)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

// Build assembles the server.  Nothing is bound or started:  the returned
// Server begins listening when its Run method is invoked.  Misconfiguration,
// including a missing TLS certificate or keystore file, is reported here so
// that a bad deployment fails at startup.
func (b *Builder) Build() (*Server, error) {
	c := b.Configuration
	if c == nil || len(c.Deploy.Directory) == 0 {
		return nil, errors.New("a deploy directory is required")
	}

	logger := b.logger()
	registry, err := b.registry()
	if err != nil {
		return nil, err
	}

	g := gate.New(
		gate.WithClosedGauge(registry.NewGauge(GateClosed)),
	)

	workers := semaphore.Instrument(
		semaphore.New(c.maxWorkers()),
		semaphore.WithResources(registry.NewGauge(WorkerPoolInUse)),
		semaphore.WithFailures(registry.NewCounter(WorkerPoolFailures)),
	)

	pool, _ := workers.(semaphore.Pool)
	mon := monitor.New(monitor.Options{
		Logger:                  log.With(logger, "component", "monitor"),
		Period:                  c.Monitor.Period,
		IdleTimeout:             c.idleTimeout(),
		LowResourcesIdleTimeout: c.Monitor.LowResourcesIdleTimeout,
		MaxLowResourcesTime:     c.Monitor.MaxLowResourcesTime,
		MaxMemory:               c.Monitor.MaxMemory,
		MinFreeMemory:           c.Monitor.MinFreeMemory,
		MaxGoroutines:           c.Monitor.MaxGoroutines,
		Workers:                 pool,
		Gate:                    g,
		LowGauge:                registry.NewGauge(monitor.LowResourcesState),
		Transitions:             registry.NewCounter(monitor.LowResourcesTransitions),
	})

	deployer, err := deploy.New(deploy.Options{
		Logger:       log.With(logger, "component", "deploy"),
		Directory:    c.Deploy.Directory,
		Pattern:      c.Deploy.Pattern,
		ScanInterval: c.Deploy.ScanInterval,
		QuietPeriod:  c.Deploy.QuietPeriod,
		Deployed:     registry.NewGauge(deploy.DeployedContexts),
		Failures:     registry.NewCounter(deploy.DeployFailures),
	})

	if err != nil {
		return nil, err
	}

	rules, err := b.rules()
	if err != nil {
		return nil, err
	}

	chain := alice.New(
		xhttp.Gate(g, nil),
		xhttp.Busy(workers),
		rewrite.Handler(rules...),
		stats.Handler(registry),
	)

	s := &Server{
		name:            c.name(),
		logger:          logger,
		registry:        registry,
		shutdownTimeout: c.shutdownTimeout(),
		monitor:         mon,
		deployer:        deployer,
	}

	if len(c.AccessLog.File) > 0 {
		s.accessLog = requestlog.New(requestlog.Options{
			Logger:     log.With(logger, "component", "accessLog"),
			File:       c.AccessLog.File,
			MaxSize:    c.AccessLog.MaxSize,
			MaxAge:     c.AccessLog.MaxAge,
			MaxBackups: c.AccessLog.MaxBackups,
			QueueSize:  c.AccessLog.QueueSize,
			Cookies:    c.AccessLog.Cookies,
			Dropped:    registry.NewCounter(AccessLogDropped),
		})

		chain = chain.Append(requestlog.Handler(s.accessLog, logger))
	}

	primaryHandler := chain.Then(deployer)

	if c.Realm != nil {
		s.realm, err = realm.New(realm.Options{
			Logger:          log.With(logger, "component", "realm"),
			Name:            c.Realm.Name,
			File:            c.Realm.File,
			RefreshInterval: c.Realm.RefreshInterval,
		})

		if err != nil {
			return nil, err
		}
	}

	// a missing certificate or key is caught here, before any port is bound
	if c.secure() {
		if _, err := xlistener.NewServerTLSConfig(c.CertificateFile, c.KeyFile); err != nil {
			return nil, err
		}
	}

	s.primary = b.newPrimary(logger, registry, mon, primaryHandler, "primary", c.address(), "", "")
	if c.secure() {
		s.secure = b.newPrimary(logger, registry, mon, primaryHandler, "primary.secure", c.secureAddress(), c.CertificateFile, c.KeyFile)
	}

	s.admin = b.newAdmin(logger, registry, mon, deployer, s.realm)
	s.pprof = &managedServer{
		name:   "pprof",
		logger: log.With(logger, "server", "pprof"),
		server: xhttp.NewServer(xhttp.ServerOptions{
			Logger:  log.With(logger, "server", "pprof"),
			Address: c.pprofAddress(),
		}),
	}

	// pprof handlers register themselves on http.DefaultServeMux
	s.pprof.server.Handler = http.DefaultServeMux

	return s, nil
}

// newPrimary builds one of the primary servers.  The idle timeout is enforced at
// the listener through the resource monitor, not by http.Server, so that it can
// shrink while the server is under pressure.
func (b *Builder) newPrimary(logger log.Logger, registry xmetrics.Registry, mon *monitor.Monitor, handler http.Handler, name, address, certificateFile, keyFile string) *managedServer {
	c := b.Configuration
	serverLogger := log.With(logger, "server", name)

	server := xhttp.NewServer(xhttp.ServerOptions{
		Logger:            serverLogger,
		Address:           address,
		ReadTimeout:       c.ReadTimeout,
		ReadHeaderTimeout: c.ReadHeaderTimeout,
		WriteTimeout:      c.WriteTimeout,
		MaxHeaderBytes:    c.maxHeaderBytes(),
	})

	server.Handler = handler

	return &managedServer{
		name:              name,
		logger:            serverLogger,
		server:            server,
		disableKeepAlives: c.DisableKeepAlives,
		listen: func() (net.Listener, error) {
			return xlistener.New(xlistener.Options{
				Logger:          serverLogger,
				Address:         address,
				MaxConnections:  c.maxConnections(),
				CertificateFile: certificateFile,
				KeyFile:         keyFile,
				Timeouts:        mon,
				Rejected:        registry.NewCounterVec(ListenerRejectedConnections).WithLabelValues(name),
				Active:          registry.NewGaugeVec(ListenerActiveConnections).WithLabelValues(name),
			})
		},
	}
}

// newAdmin builds the admin server, which hosts the monitor status, prometheus
// metrics, and deployed context listing.  When a realm is configured, every
// admin endpoint requires HTTP Basic credentials.
func (b *Builder) newAdmin(logger log.Logger, registry xmetrics.Registry, mon *monitor.Monitor, deployer *deploy.Deployer, r *realm.Realm) *managedServer {
	var (
		c            = b.Configuration
		serverLogger = log.With(logger, "server", "admin")
		router       = mux.NewRouter()
	)

	router.Handle(StatusPath, mon).Methods("GET")
	router.Handle(ContextsPath, ContextsHandler(deployer)).Methods("GET")
	router.Handle(MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	var handler http.Handler = router
	if r != nil {
		var roles []string
		if len(c.Realm.Role) > 0 {
			roles = append(roles, c.Realm.Role)
		}

		handler = realm.BasicAuth(r, roles...)(router)
	}

	server := xhttp.NewServer(xhttp.ServerOptions{
		Logger:  serverLogger,
		Address: c.adminAddress(),
	})

	server.Handler = handler

	return &managedServer{
		name:   "admin",
		logger: serverLogger,
		server: server,
	}
}
