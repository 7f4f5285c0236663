package requestlog

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/segmentio/ksuid"
	"github.com/xmidt-org/hestia/clock"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/xmetrics"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultQueueSize is the size of the pending entry queue when none is configured
	DefaultQueueSize = 1024

	// DefaultMaxAge is the number of days rotated access logs are retained
	DefaultMaxAge = 90

	// RequestIDHeader carries the generated request identifier on responses
	RequestIDHeader = "X-Request-Id"

	// timeLayout is the timestamp layout used by common/combined access log formats
	timeLayout = "02/Jan/2006:15:04:05 -0700"
)

// Options configures an access Logger
type Options struct {
	// Logger is the go-kit logger used for this package's own output, not for
	// access log entries.  If unset, logging.DefaultLogger() is used.
	Logger log.Logger

	// Clock is the time source for entry timestamps.  If unset, clock.System() is used.
	Clock clock.Interface

	// File is the access log file.  Rotation is handled by lumberjack.
	File string

	// MaxSize is the maximum size, in megabytes, of the access log before rotation
	MaxSize int

	// MaxAge is the maximum number of days to retain rotated access logs.
	// Defaults to DefaultMaxAge.
	MaxAge int

	// MaxBackups is the maximum number of rotated access logs to retain
	MaxBackups int

	// QueueSize is the capacity of the pending entry queue.  Entries are dropped,
	// and counted, when the queue is full.  Defaults to DefaultQueueSize.
	QueueSize int

	// Cookies controls whether request cookies are appended to each entry
	Cookies bool

	// Output overrides File as the destination for entries.  Primarily useful for testing.
	Output io.Writer

	// Dropped is incremented for each entry discarded due to a full queue.
	// If unset, a discard counter is used.
	Dropped xmetrics.Adder
}

// Logger formats requests as extended NCSA access log entries and writes them
// asynchronously, so that request handling never blocks on log I/O.
type Logger struct {
	logger  log.Logger
	clock   clock.Interface
	cookies bool
	entries chan []byte
	output  io.Writer
	dropped xmetrics.Incrementer
	once    sync.Once
}

// New constructs a Logger from a set of options.  Entries are not written until
// Run starts the draining goroutine.
func New(o Options) *Logger {
	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}

	if o.Clock == nil {
		o.Clock = clock.System()
	}

	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}

	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}

	if o.Dropped == nil {
		o.Dropped = discard.NewCounter()
	}

	output := o.Output
	if output == nil {
		output = &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSize,
			MaxAge:     o.MaxAge,
			MaxBackups: o.MaxBackups,
		}
	}

	return &Logger{
		logger:  o.Logger,
		clock:   o.Clock,
		cookies: o.Cookies,
		entries: make(chan []byte, o.QueueSize),
		output:  output,
		dropped: xmetrics.NewIncrementer(o.Dropped),
	}
}

// Run starts the goroutine that drains queued entries to the output.  On shutdown,
// any remaining queued entries are flushed before the output is closed.  This
// method is idempotent.
func (l *Logger) Run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) error {
	l.once.Do(func() {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			defer l.close()

			for {
				select {
				case entry := <-l.entries:
					l.write(entry)
				case <-shutdown:
					l.flush()
					return
				}
			}
		}()
	})

	return nil
}

func (l *Logger) write(entry []byte) {
	if _, err := l.output.Write(entry); err != nil {
		l.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "unable to write access log entry", logging.ErrorKey(), err)
	}
}

func (l *Logger) flush() {
	for {
		select {
		case entry := <-l.entries:
			l.write(entry)
		default:
			return
		}
	}
}

func (l *Logger) close() {
	if closer, ok := l.output.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			l.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "unable to close access log", logging.ErrorKey(), err)
		}
	}
}

// format renders a single extended NCSA entry, optionally with cookies appended
func (l *Logger) format(request *http.Request, status int, written int64) []byte {
	var b strings.Builder

	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		host = request.RemoteAddr
	}

	b.WriteString(host)
	b.WriteString(" - ")

	if user, _, ok := request.BasicAuth(); ok && len(user) > 0 {
		b.WriteString(user)
	} else {
		b.WriteRune('-')
	}

	// access log timestamps are always GMT, regardless of the host zone
	b.WriteString(" [")
	b.WriteString(l.clock.Now().UTC().Format(timeLayout))
	b.WriteString("] \"")
	b.WriteString(request.Method)
	b.WriteRune(' ')
	b.WriteString(request.URL.RequestURI())
	b.WriteRune(' ')
	b.WriteString(request.Proto)
	b.WriteString("\" ")
	b.WriteString(strconv.Itoa(status))
	b.WriteRune(' ')
	b.WriteString(strconv.FormatInt(written, 10))

	fmt.Fprintf(&b, " %q %q", request.Referer(), request.UserAgent())

	if l.cookies {
		b.WriteString(" \"")
		for i, cookie := range request.Cookies() {
			if i > 0 {
				b.WriteRune(';')
			}

			b.WriteString(cookie.Name)
			b.WriteRune('=')
			b.WriteString(cookie.Value)
		}

		b.WriteRune('"')
	}

	b.WriteRune('\n')
	return []byte(b.String())
}

// log enqueues an entry.  The entry is dropped and counted if the queue is full.
func (l *Logger) log(request *http.Request, status int, written int64) {
	select {
	case l.entries <- l.format(request, status, written):
	default:
		l.dropped.Inc()
	}
}

// observer captures the status code and body byte count of a response while
// passing the optional http.ResponseWriter behaviors through to the underlying
// writer, so that streaming handlers and protocol upgrades still work when the
// access log is enabled
type observer struct {
	http.ResponseWriter
	status  int
	written int64
}

func (o *observer) WriteHeader(status int) {
	if o.status == 0 {
		o.status = status
	}

	o.ResponseWriter.WriteHeader(status)
}

func (o *observer) Write(data []byte) (int, error) {
	if o.status == 0 {
		o.status = http.StatusOK
	}

	c, err := o.ResponseWriter.Write(data)
	o.written += int64(c)
	return c, err
}

func (o *observer) Flush() {
	if flusher, ok := o.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (o *observer) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := o.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}

	return nil, nil, errors.New("the underlying response writer does not support hijacking")
}

// Handler produces an Alice-style constructor that logs each request through the
// given Logger.  Every request is tagged with a generated identifier, exposed on
// the response via RequestIDHeader and bound to the request's context logger.
func Handler(l *Logger, base log.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = logging.DefaultLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			requestID := ksuid.New().String()
			response.Header().Set(RequestIDHeader, requestID)

			ctx := logging.WithLogger(
				request.Context(),
				log.With(base, "requestId", requestID),
			)

			o := &observer{ResponseWriter: response}
			next.ServeHTTP(o, request.WithContext(ctx))

			if o.status == 0 {
				o.status = http.StatusOK
			}

			l.log(request, o.status, o.written)
		})
	}
}
