package logging

import (
	"io"
	"strings"

	"github.com/go-kit/kit/log"
)

// testSink is the subset of testing.T and testing.B this package needs
type testSink interface {
	Log(...interface{})
}

type testWriter struct {
	testSink
}

func (t testWriter) Write(data []byte) (int, error) {
	// the testing package adds its own newline
	t.testSink.Log(strings.TrimSuffix(string(data), "\n"))
	return len(data), nil
}

// NewTestWriter returns an io.Writer which sends each write to a testing log.
// The returned io.Writer does not need to be synchronized.
func NewTestWriter(t testSink) io.Writer {
	return testWriter{t}
}

// NewTestLogger produces a go-kit Logger which writes to the supplied testing
// log.  A nil options value defaults the level to DEBUG, so that tests show
// all output.
func NewTestLogger(o *Options, t testSink) log.Logger {
	if o == nil {
		o = &Options{Level: "DEBUG"}
	}

	return NewFilter(
		log.With(
			o.loggerFactory()(NewTestWriter(t)),
			TimestampKey(), log.DefaultTimestampUTC,
		),
		o,
	)
}
