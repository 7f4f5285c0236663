package logging

import (
	"io"
	"strings"

	"github.com/go-kit/kit/log"
)

// ErrorWriter adapts io.Writer onto a go-kit Logger, emitting each write as
// an ERROR level entry.  http.Server error logs are the expected consumer.
type ErrorWriter struct {
	Logger log.Logger
}

var _ io.Writer = (*ErrorWriter)(nil)

func (e *ErrorWriter) Write(data []byte) (int, error) {
	Error(e.Logger).Log(MessageKey(), strings.TrimSuffix(string(data), "\n"))
	return len(data), nil
}
