package xhttp

import (
	stdlog "log"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/xmidt-org/hestia/logging"
)

// httpServer is the subset of http.Server behavior needed to start serving
type httpServer interface {
	ListenAndServe() error
	ListenAndServeTLS(string, string) error

	Serve(net.Listener) error
	ServeTLS(net.Listener, string, string) error

	SetKeepAlivesEnabled(bool)
}

// NewServerLogger adapts a go-kit Logger for use as an http.Server.ErrorLog.
// Everything the server writes is logged at ERROR level.
func NewServerLogger(logger log.Logger) *stdlog.Logger {
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	// no prefix or flags, the go-kit logger supplies the timestamp
	return stdlog.New(&logging.ErrorWriter{Logger: logger}, "", 0)
}

// NewServerConnStateLogger produces an http.Server.ConnState callback that logs
// connection transitions at DEBUG
func NewServerConnStateLogger(logger log.Logger) func(net.Conn, http.ConnState) {
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	return func(c net.Conn, cs http.ConnState) {
		logger.Log(
			level.Key(), level.DebugValue(),
			"remoteAddress", c.RemoteAddr(),
			"state", cs,
		)
	}
}

// StartOptions holds the subset of server options that control how an
// HTTP server is started, as opposed to how it is constructed.
type StartOptions struct {
	// Logger is used for startup and exit logging.  If unset,
	// logging.DefaultLogger() is used.
	Logger log.Logger

	// Listener, when set, is the listener the server serves on.  When unset,
	// the server binds its own listener from its configured address.
	Listener net.Listener

	// DisableKeepAlives turns off HTTP keep alives on the server
	DisableKeepAlives bool

	// CertificateFile is the server certificate.  TLS is used only when both
	// this field and KeyFile are set.
	CertificateFile string

	// KeyFile is the server private key.  TLS is used only when both this
	// field and CertificateFile are set.
	KeyFile string
}

// serve returns the http.Server method that matches these options:  one of
// Serve, ServeTLS, ListenAndServe, or ListenAndServeTLS.
func (o StartOptions) serve(s httpServer) func() error {
	secure := len(o.CertificateFile) > 0 && len(o.KeyFile) > 0

	switch {
	case secure && o.Listener != nil:
		return func() error { return s.ServeTLS(o.Listener, o.CertificateFile, o.KeyFile) }
	case secure:
		return func() error { return s.ListenAndServeTLS(o.CertificateFile, o.KeyFile) }
	case o.Listener != nil:
		return func() error { return s.Serve(o.Listener) }
	default:
		return s.ListenAndServe
	}
}

// NewStarter produces a closure that starts the given server and blocks until
// it exits, logging the outcome.  The options are applied to the server first,
// so the server must not already be running.  http.ErrServerClosed is treated
// as a normal exit and still returned to the caller.
func NewStarter(o StartOptions, s httpServer) func() error {
	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}

	s.SetKeepAlivesEnabled(!o.DisableKeepAlives)
	serve := o.serve(s)

	return func() error {
		o.Logger.Log(level.Key(), level.InfoValue(), logging.MessageKey(), "starting server")
		err := serve()
		if err == http.ErrServerClosed {
			o.Logger.Log(level.Key(), level.InfoValue(), logging.MessageKey(), "server closed")
		} else {
			o.Logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "server exited", logging.ErrorKey(), err)
		}

		return err
	}
}

// ServerOptions describes both how an http.Server is constructed and how it
// is started.  Zero valued fields fall back to the net/http defaults.
type ServerOptions struct {
	// Logger is used for the server's error log, connection state log, and
	// startup logging.  If unset, logging.DefaultLogger() is used.
	Logger log.Logger

	// Address is the bind address of the server
	Address string

	// ReadTimeout is the maximum duration for reading an entire request
	ReadTimeout time.Duration

	// ReadHeaderTimeout is the time allowed to read request headers
	ReadHeaderTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out response writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request when
	// keep alives are enabled
	IdleTimeout time.Duration

	// MaxHeaderBytes limits the size of request headers the server will parse
	MaxHeaderBytes int

	// Listener, when set, is the listener the server serves on
	Listener net.Listener

	// DisableKeepAlives turns off HTTP keep alives on the server
	DisableKeepAlives bool

	// CertificateFile is the server certificate.  TLS is used only when both
	// this field and KeyFile are set.
	CertificateFile string

	// KeyFile is the server private key.  TLS is used only when both this
	// field and CertificateFile are set.
	KeyFile string
}

// StartOptions extracts the start-time options, decorating the logger with
// the server's bind address
func (so *ServerOptions) StartOptions() StartOptions {
	logger := so.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	return StartOptions{
		Logger:            log.With(logger, "address", so.Address),
		Listener:          so.Listener,
		DisableKeepAlives: so.DisableKeepAlives,
		CertificateFile:   so.CertificateFile,
		KeyFile:           so.KeyFile,
	}
}

// NewServer constructs an http.Server from a set of options.  The server's
// error and connection state logs are wired to the options logger.
func NewServer(o ServerOptions) *http.Server {
	return &http.Server{
		Addr:              o.Address,
		ReadTimeout:       o.ReadTimeout,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
		WriteTimeout:      o.WriteTimeout,
		IdleTimeout:       o.IdleTimeout,
		MaxHeaderBytes:    o.MaxHeaderBytes,
		ErrorLog:          NewServerLogger(o.Logger),
		ConnState:         NewServerConnStateLogger(o.Logger),
	}
}
