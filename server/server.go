// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/xmidt-org/hestia/concurrent"
	"github.com/xmidt-org/hestia/deploy"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/monitor"
	"github.com/xmidt-org/hestia/realm"
	"github.com/xmidt-org/hestia/requestlog"
	"github.com/xmidt-org/hestia/xhttp"
	"github.com/xmidt-org/hestia/xmetrics"
)

// managedServer couples an http.Server with the listener it serves on and the
// logging context it reports under
type managedServer struct {
	name              string
	logger            log.Logger
	server            *http.Server
	disableKeepAlives bool

	// listen binds the server's listener.  A nil listen means the server uses
	// the net/http default listener for its configured address.
	listen func() (net.Listener, error)
}

// runnable adapts this managed server to the concurrent.Runnable contract:
// binding the listener, serving on a new goroutine, and draining gracefully
// when shutdown is signalled
func (ms *managedServer) runnable(drainTimeout time.Duration) concurrent.Runnable {
	return concurrent.RunnableFunc(func(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) error {
		return ms.run(waitGroup, shutdown, drainTimeout)
	})
}

func (ms *managedServer) run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}, drainTimeout time.Duration) error {
	var listener net.Listener
	if ms.listen != nil {
		var err error
		if listener, err = ms.listen(); err != nil {
			return err
		}
	}

	starter := xhttp.NewStarter(
		xhttp.StartOptions{
			Logger:            log.With(ms.logger, "address", ms.server.Addr),
			Listener:          listener,
			DisableKeepAlives: ms.disableKeepAlives,
		},
		ms.server,
	)

	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		starter()
	}()

	go func() {
		defer waitGroup.Done()
		<-shutdown

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := ms.server.Shutdown(ctx); err != nil {
			ms.logger.Log(level.Key(), level.WarnValue(), logging.MessageKey(), "server did not drain cleanly", logging.ErrorKey(), err)
		}
	}()

	return nil
}

// Server is a fully assembled serving stack:  the primary HTTP and HTTPS
// servers dispatching to hot-deployed contexts, the admin server, the pprof
// server, and the background components supporting them.  Use a Builder to
// construct one.
type Server struct {
	name            string
	logger          log.Logger
	registry        xmetrics.Registry
	shutdownTimeout time.Duration

	monitor   *monitor.Monitor
	deployer  *deploy.Deployer
	accessLog *requestlog.Logger
	realm     *realm.Realm

	primary *managedServer
	secure  *managedServer
	admin   *managedServer
	pprof   *managedServer

	once sync.Once
}

// Name returns the configured server name
func (s *Server) Name() string {
	return s.name
}

// Logger returns the root logger for this server
func (s *Server) Logger() log.Logger {
	return s.logger
}

// Registry returns the metrics registry backing this server
func (s *Server) Registry() xmetrics.Registry {
	return s.registry
}

// Monitor returns the resource monitor
func (s *Server) Monitor() *monitor.Monitor {
	return s.monitor
}

// Deployer returns the hot deployer serving primary traffic
func (s *Server) Deployer() *deploy.Deployer {
	return s.deployer
}

// Run starts every component of this server:  the background goroutines first,
// then the listeners.  The initial deployment scan happens before any listener
// is bound, so the primary servers never serve an empty context set at startup.
//
// Closing the shutdown channel drains the HTTP servers gracefully:  listeners
// stop accepting, requests in flight are given the configured shutdown timeout
// to complete, and queued access log entries are flushed.  This method is idempotent.
func (s *Server) Run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) (err error) {
	s.once.Do(func() {
		s.logger.Log(level.Key(), level.InfoValue(), logging.MessageKey(), "starting", "name", s.name)

		set := concurrent.RunnableSet{s.deployer, s.monitor}
		if s.accessLog != nil {
			set = append(set, s.accessLog)
		}

		if s.realm != nil {
			set = append(set, s.realm)
		}

		for _, ms := range []*managedServer{s.primary, s.secure, s.admin, s.pprof} {
			if ms != nil {
				set = append(set, ms.runnable(s.shutdownTimeout))
			}
		}

		err = set.Run(waitGroup, shutdown)
	})

	return
}

// deployedContext is the JSON shape of one entry in the admin context listing
type deployedContext struct {
	File        string `json:"file"`
	ContextPath string `json:"contextPath"`
	Static      bool   `json:"static"`
}

// ContextsHandler returns an http.Handler that lists the currently deployed
// contexts as JSON
func ContextsHandler(d *deploy.Deployer) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, _ *http.Request) {
		deployed := d.Contexts().Deployed()
		listing := make([]deployedContext, 0, len(deployed))
		for _, c := range deployed {
			listing = append(listing, deployedContext{
				File:        c.File,
				ContextPath: c.Descriptor.ContextPath,
				Static:      len(c.Descriptor.ResourceBase) > 0,
			})
		}

		response.Header().Set("Content-Type", "application/json")
		json.NewEncoder(response).Encode(listing)
	})
}
