package logging

import (
	"io"
	"os"

	"github.com/go-kit/kit/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	StdoutFile = "stdout"
)

// Options configures a root Logger.  Rolling files are handled by lumberjack.
type Options struct {
	// File is the path of the log file.  The value "stdout", or an empty
	// value, logs to os.Stdout instead of a file.
	File string `json:"file"`

	// MaxSize is the lumberjack MaxSize, in megabytes
	MaxSize int `json:"maxsize"`

	// MaxAge is the lumberjack MaxAge, in days
	MaxAge int `json:"maxage"`

	// MaxBackups is the lumberjack MaxBackups
	MaxBackups int `json:"maxbackups"`

	// JSON selects JSON output.  The default is logfmt.
	JSON bool `json:"json"`

	// Level is the filter level: ERROR, WARN, INFO, or DEBUG.  Any
	// unrecognized value, including the empty string, behaves as ERROR.
	Level string `json:"level"`
}

func (o *Options) output() io.Writer {
	if o != nil && len(o.File) > 0 && o.File != StdoutFile {
		return &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSize,
			MaxAge:     o.MaxAge,
			MaxBackups: o.MaxBackups,
		}
	}

	return log.NewSyncWriter(os.Stdout)
}

func (o *Options) loggerFactory() func(io.Writer) log.Logger {
	if o != nil && o.JSON {
		return log.NewJSONLogger
	}

	return log.NewLogfmtLogger
}

func (o *Options) level() string {
	if o != nil {
		return o.Level
	}

	return ""
}
