package requestlog

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/hestia/clock/clocktest"
	"github.com/xmidt-org/hestia/logging"
)

// syncBuffer is a goroutine-safe capture target for entries
type syncBuffer struct {
	lock   sync.Mutex
	buffer bytes.Buffer
	closed bool
}

func (sb *syncBuffer) Write(data []byte) (int, error) {
	sb.lock.Lock()
	defer sb.lock.Unlock()
	return sb.buffer.Write(data)
}

func (sb *syncBuffer) Close() error {
	sb.lock.Lock()
	defer sb.lock.Unlock()
	sb.closed = true
	return nil
}

func (sb *syncBuffer) String() string {
	sb.lock.Lock()
	defer sb.lock.Unlock()
	return sb.buffer.String()
}

func (sb *syncBuffer) Closed() bool {
	sb.lock.Lock()
	defer sb.lock.Unlock()
	return sb.closed
}

func TestFormat(t *testing.T) {
	var (
		now       = time.Date(2023, time.March, 14, 9, 26, 53, 0, time.UTC)
		timestamp = now.Format(timeLayout)
	)

	testData := []struct {
		name     string
		cookies  bool
		build    func() *http.Request
		status   int
		written  int64
		expected string
	}{
		{
			name:    "Simple",
			cookies: false,
			build: func() *http.Request {
				r := httptest.NewRequest("GET", "/api/v1/device?limit=10", nil)
				r.RemoteAddr = "10.1.2.3:49152"
				return r
			},
			status:   200,
			written:  1523,
			expected: fmt.Sprintf(`10.1.2.3 - - [%s] "GET /api/v1/device?limit=10 HTTP/1.1" 200 1523 "" ""`+"\n", timestamp),
		},
		{
			name:    "Full",
			cookies: true,
			build: func() *http.Request {
				r := httptest.NewRequest("POST", "/upload", nil)
				r.RemoteAddr = "192.168.1.10:1234"
				r.SetBasicAuth("alice", "secret")
				r.Header.Set("Referer", "https://example.com/page")
				r.Header.Set("User-Agent", "curl/8.0.1")
				r.AddCookie(&http.Cookie{Name: "session", Value: "abc123"})
				r.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
				return r
			},
			status:   201,
			written:  0,
			expected: fmt.Sprintf(`192.168.1.10 - alice [%s] "POST /upload HTTP/1.1" 201 0 "https://example.com/page" "curl/8.0.1" "session=abc123;theme=dark"`+"\n", timestamp),
		},
	}

	for _, record := range testData {
		t.Run(record.name, func(t *testing.T) {
			var (
				assert = assert.New(t)
				c      = new(clocktest.Mock)

				l = New(Options{
					Logger:  logging.NewTestLogger(nil, t),
					Clock:   c,
					Cookies: record.cookies,
					Output:  new(syncBuffer),
				})
			)

			c.OnNow(now).Once()
			assert.Equal(record.expected, string(l.format(record.build(), record.status, record.written)))
			c.AssertExpectations(t)
		})
	}
}

func TestFormatTimestampZone(t *testing.T) {
	var (
		assert  = assert.New(t)
		c       = new(clocktest.Mock)
		eastern = time.FixedZone("EDT", -4*60*60)

		l = New(Options{
			Logger: logging.NewTestLogger(nil, t),
			Clock:  c,
			Output: new(syncBuffer),
		})
	)

	// entries render in GMT even when the clock yields another zone
	c.OnNow(time.Date(2026, time.August, 31, 3, 52, 6, 0, eastern)).Once()
	entry := string(l.format(httptest.NewRequest("GET", "/", nil), 200, 0))
	assert.Contains(entry, "[31/Aug/2026:07:52:06 +0000]")
	c.AssertExpectations(t)
}

func TestLogDropsWhenFull(t *testing.T) {
	var (
		assert  = assert.New(t)
		dropped = generic.NewCounter("test")

		l = New(Options{
			Logger:    logging.NewTestLogger(nil, t),
			QueueSize: 1,
			Output:    new(syncBuffer),
			Dropped:   dropped,
		})
	)

	request := httptest.NewRequest("GET", "/", nil)
	l.log(request, 200, 0)
	l.log(request, 200, 0)
	assert.Equal(1.0, dropped.Value())
}

func TestRun(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		output = new(syncBuffer)
		l      = New(Options{
			Logger: logging.NewTestLogger(nil, t),
			Output: output,
		})

		waitGroup = new(sync.WaitGroup)
		shutdown  = make(chan struct{})
	)

	require.NoError(l.Run(waitGroup, shutdown))
	require.NoError(l.Run(waitGroup, shutdown)) // idempotent

	l.log(httptest.NewRequest("GET", "/first", nil), 200, 10)
	l.log(httptest.NewRequest("GET", "/second", nil), 404, 20)

	close(shutdown)
	waitGroup.Wait()

	entries := output.String()
	assert.Contains(entries, `"GET /first HTTP/1.1" 200 10`)
	assert.Contains(entries, `"GET /second HTTP/1.1" 404 20`)
	assert.True(output.Closed())
}

func TestHandler(t *testing.T) {
	t.Run("ExplicitStatus", func(t *testing.T) {
		var (
			assert = assert.New(t)
			output = new(syncBuffer)
			l      = New(Options{
				Logger: logging.NewTestLogger(nil, t),
				Output: output,
			})

			next = http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
				assert.NotNil(logging.GetLogger(request.Context()))
				response.WriteHeader(http.StatusAccepted)
				response.Write([]byte("queued"))
			})

			response = httptest.NewRecorder()
			request  = httptest.NewRequest("POST", "/submit", nil)
		)

		Handler(l, logging.NewTestLogger(nil, t))(next).ServeHTTP(response, request)

		assert.Equal(http.StatusAccepted, response.Code)
		assert.NotEmpty(response.Header().Get(RequestIDHeader))

		entry := <-l.entries
		assert.Contains(string(entry), `"POST /submit HTTP/1.1" 202 6`)
	})

	t.Run("Streaming", func(t *testing.T) {
		var (
			assert = assert.New(t)
			l      = New(Options{
				Logger: logging.NewTestLogger(nil, t),
				Output: new(syncBuffer),
			})

			next = http.HandlerFunc(func(response http.ResponseWriter, _ *http.Request) {
				flusher, ok := response.(http.Flusher)
				if assert.True(ok, "the decorated response must still support flushing") {
					response.Write([]byte("chunk"))
					flusher.Flush()
				}
			})

			response = httptest.NewRecorder()
			request  = httptest.NewRequest("GET", "/stream", nil)
		)

		Handler(l, nil)(next).ServeHTTP(response, request)
		assert.True(response.Flushed)

		entry := <-l.entries
		assert.Contains(string(entry), `"GET /stream HTTP/1.1" 200 5`)
	})

	t.Run("ImplicitStatus", func(t *testing.T) {
		var (
			assert = assert.New(t)
			l      = New(Options{
				Logger: logging.NewTestLogger(nil, t),
				Output: new(syncBuffer),
			})

			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			})

			response = httptest.NewRecorder()
			request  = httptest.NewRequest("GET", "/ping", nil)
		)

		Handler(l, nil)(next).ServeHTTP(response, request)

		entry := <-l.entries
		assert.Contains(string(entry), `"GET /ping HTTP/1.1" 200 0`)
	})
}

// hijackRecorder augments a recorder with a trivial Hijack implementation
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestObserverHijack(t *testing.T) {
	t.Run("Supported", func(t *testing.T) {
		var (
			assert   = assert.New(t)
			delegate = &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
			o        = &observer{ResponseWriter: delegate}
		)

		_, _, err := o.Hijack()
		assert.NoError(err)
		assert.True(delegate.hijacked)
	})

	t.Run("Unsupported", func(t *testing.T) {
		var (
			assert = assert.New(t)
			o      = &observer{ResponseWriter: httptest.NewRecorder()}
		)

		_, _, err := o.Hijack()
		assert.Error(err)
	})
}
