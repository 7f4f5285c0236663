package xlistener

import (
	"crypto/tls"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/pkg/errors"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/xmetrics"
)

var (
	// netListen is the factory function for creating a net.Listener.  Defaults to net.Listen.  Only tests would change this variable.
	netListen = net.Listen

	// tlsListen is the factory function for creating a tls.Listener.  Defaults to tls.Listen.  Only tests would change this variable.
	tlsListen = tls.Listen
)

// Timeouts supplies the idle timeout applied to accepted connections.  The low-resource
// monitor implements this interface, returning a shortened timeout under resource pressure.
// Implementations must be safe for concurrent use.
type Timeouts interface {
	// IdleTimeout returns the current per-connection idle timeout.  A nonpositive
	// value disables idle deadline enforcement.
	IdleTimeout() time.Duration
}

// FixedTimeout returns a Timeouts implementation that always reports the given value.
func FixedTimeout(d time.Duration) Timeouts {
	return fixedTimeout(d)
}

type fixedTimeout time.Duration

func (f fixedTimeout) IdleTimeout() time.Duration {
	return time.Duration(f)
}

// Options defines the available options for configuring a listener
type Options struct {
	// Logger is the go-kit logger to use for output.  If unset, logging.DefaultLogger() is used.
	Logger log.Logger

	// MaxConnections is the maximum number of active connections the listener will permit.  If this
	// value is not positive, there is no limit to the number of connections.
	MaxConnections int

	// Rejected is incremented each time the listener rejects a connection.  If unset, a go-kit discard Counter is used.
	Rejected xmetrics.Adder

	// Active is updated to reflect the current number of active connections.  If unset, a go-kit discard Gauge is used.
	Active xmetrics.Adder

	// Network is the network to listen on.  This value is only used if Next is unset.  Defaults to "tcp" if unset.
	Network string

	// Address is the address to listen on.  This value is only used if Next is unset.  Defaults to ":http" if unset.
	Address string

	// Next is the net.Listener to decorate.  If this field is set, Network and Address are ignored.
	Next net.Listener

	// CertificateFile and KeyFile hold the server certificate.  If both are set and Config is unset,
	// a tls.Config is built via NewServerTLSConfig, which fails fast when either file is missing.
	CertificateFile string
	KeyFile         string

	// Config is the TLS configuration for a secure listener.  Takes precedence over
	// CertificateFile and KeyFile.
	Config *tls.Config

	// Timeouts supplies the idle timeout applied to each accepted connection.  Each read and
	// write refreshes the connection deadline from this source, so a change in the reported
	// timeout affects established connections on their next I/O.  If unset, no deadlines are set.
	Timeouts Timeouts
}

// NewServerTLSConfig builds a server-side tls.Config from a certificate file and a key file.
// Both files must exist:  a missing file is reported before any socket is bound, so that a
// misconfigured server fails at startup rather than at first handshake.
func NewServerTLSConfig(certificateFile, keyFile string) (*tls.Config, error) {
	for _, file := range []string{certificateFile, keyFile} {
		if _, err := os.Stat(file); err != nil {
			return nil, errors.Wrapf(err, "TLS asset missing: %s", file)
		}
	}

	certificate, err := tls.LoadX509KeyPair(certificateFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load server certificate")
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{certificate},
	}, nil
}

// New constructs a new net.Listener using a set of options.
//
// If Next is set, that listener is decorated with connection limiting and other options specified in Options.
// Otherwise, a new net.Listener is created, and that new listener is decorated.  Note that in the case
// where this function creates a new net.Listener, that listener will be occupying a port and should be cleaned
// up via Close() if higher level errors occur.
func New(o Options) (net.Listener, error) {
	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}

	var semaphore chan struct{}
	if o.MaxConnections > 0 {
		semaphore = make(chan struct{}, o.MaxConnections)
	}

	if o.Rejected == nil {
		o.Rejected = discard.NewCounter()
	}

	if o.Active == nil {
		o.Active = discard.NewGauge()
	}

	if o.Config == nil && len(o.CertificateFile) > 0 && len(o.KeyFile) > 0 {
		config, err := NewServerTLSConfig(o.CertificateFile, o.KeyFile)
		if err != nil {
			return nil, err
		}

		o.Config = config
	}

	next := o.Next
	if next == nil {
		if len(o.Network) == 0 {
			o.Network = "tcp"
		}

		if len(o.Address) == 0 {
			o.Address = ":http"
		}

		var err error
		if o.Config != nil {
			next, err = tlsListen(o.Network, o.Address, o.Config)
		} else {
			next, err = netListen(o.Network, o.Address)
		}
		if err != nil {
			return nil, err
		}
	}

	return &listener{
		Listener:  next,
		logger:    log.With(o.Logger, "listenNetwork", next.Addr().Network(), "listenAddress", next.Addr().String()),
		semaphore: semaphore,
		rejected:  xmetrics.NewIncrementer(o.Rejected),
		active:    o.Active,
		timeouts:  o.Timeouts,
	}, nil
}

// listener decorates a net.Listener with connection limiting, metrics, and idle deadline enforcement
type listener struct {
	net.Listener
	logger    log.Logger
	semaphore chan struct{}
	rejected  xmetrics.Incrementer
	active    xmetrics.Adder
	timeouts  Timeouts
}

// acquire attempts to obtain a semaphore resource.  If the semaphore has not been set (i.e. no maximum connections),
// this method immediately returns true.  Otherwise, the semaphore must be immediately acquired or this method returns false.
// In all cases, the active connections gauge is updated if appropriate.
func (l *listener) acquire() bool {
	if l.semaphore == nil {
		l.active.Add(1.0)
		return true
	}

	select {
	case l.semaphore <- struct{}{}:
		l.active.Add(1.0)
		return true
	default:
		return false
	}
}

// release returns a semaphore resource to the pool, if set.  This method also decrements the active connection gauge.
func (l *listener) release() {
	l.active.Add(-1.0)
	if l.semaphore != nil {
		<-l.semaphore
	}
}

// Accept invokes the delegate net.Listener's Accept method, then attempts to acquire the semaphore.
// If the semaphore was set and could not be acquired, the accepted connection is immediately closed.
func (l *listener) Accept() (net.Conn, error) {
	for {
		c, err := l.Listener.Accept()
		if err != nil {
			sysValue := ""
			if errno, ok := err.(syscall.Errno); ok {
				sysValue = "0x" + strconv.FormatInt(int64(errno), 16)
			}

			l.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "failed to accept connection", logging.ErrorKey(), err, "sysValue", sysValue)
			if err == syscall.ENFILE {
				l.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "ENFILE received.  translating to EMFILE")
				return nil, syscall.EMFILE
			}

			return nil, err
		}

		if !l.acquire() {
			l.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "rejected connection", "remoteAddress", c.RemoteAddr().String())
			l.rejected.Inc()
			c.Close()
			continue
		}

		l.logger.Log(level.Key(), level.DebugValue(), logging.MessageKey(), "accepted connection", "remoteAddress", c.RemoteAddr().String())
		return &conn{Conn: c, timeouts: l.timeouts, release: l.release}, nil
	}
}

// conn is a decorated net.Conn that supplies feedback to a listener when the connection is closed
// and enforces the current idle timeout on each I/O operation.
type conn struct {
	net.Conn
	timeouts    Timeouts
	releaseOnce sync.Once
	release     func()
}

// refreshDeadline pushes out the connection deadline by the currently configured idle timeout.
// A connection that performs no I/O within that window is timed out by the runtime on its
// next operation.
func (c *conn) refreshDeadline() error {
	if c.timeouts == nil {
		return nil
	}

	if idle := c.timeouts.IdleTimeout(); idle > 0 {
		return c.Conn.SetDeadline(time.Now().Add(idle))
	}

	return c.Conn.SetDeadline(time.Time{})
}

func (c *conn) Read(b []byte) (int, error) {
	if err := c.refreshDeadline(); err != nil {
		return 0, err
	}

	return c.Conn.Read(b)
}

func (c *conn) Write(b []byte) (int, error) {
	if err := c.refreshDeadline(); err != nil {
		return 0, err
	}

	return c.Conn.Write(b)
}

// Close closes the decorated connection and invokes release on the listener that created it.  The release
// operation is idempotent.
func (c *conn) Close() error {
	err := c.Conn.Close()
	c.releaseOnce.Do(c.release)
	return err
}
