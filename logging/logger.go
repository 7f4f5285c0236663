package logging

import (
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

var (
	defaultLogger = log.NewNopLogger()

	callerKey    interface{} = "caller"
	messageKey   interface{} = "msg"
	errorKey     interface{} = "error"
	timestampKey interface{} = "ts"
)

// CallerKey returns the logging key for the stack location of the logging call
func CallerKey() interface{} {
	return callerKey
}

// MessageKey returns the logging key for the textual message of a log entry
func MessageKey() interface{} {
	return messageKey
}

// ErrorKey returns the logging key for error instances
func ErrorKey() interface{} {
	return errorKey
}

// TimestampKey returns the logging key for the entry timestamp
func TimestampKey() interface{} {
	return timestampKey
}

// DefaultLogger returns the global NOP logger, safe for concurrent use.
// Components fall back to this instance when no logger is configured.
func DefaultLogger() log.Logger {
	return defaultLogger
}

// New creates a go-kit Logger from a set of options.  A nil options value
// produces a logfmt logger on os.Stdout filtered at ERROR.  Timestamps are
// emitted in UTC under TimestampKey.
//
// No caller information is inserted, so that the returned logger can be
// decorated freely.  Apply DefaultCaller, or the go-kit log.Caller API, as
// the outermost decoration.
func New(o *Options) log.Logger {
	return NewFilter(
		log.WithPrefix(
			o.loggerFactory()(o.output()),
			TimestampKey(), log.DefaultTimestampUTC,
		),
		o,
	)
}

// NewFilter applies the level filtering described by the options to an
// arbitrary go-kit Logger.  Unrecognized levels, including the empty
// string, filter at ERROR.
func NewFilter(next log.Logger, o *Options) log.Logger {
	var allowed level.Option
	switch strings.ToUpper(o.level()) {
	case "DEBUG":
		allowed = level.AllowDebug()
	case "INFO":
		allowed = level.AllowInfo()
	case "WARN":
		allowed = level.AllowWarn()
	default:
		allowed = level.AllowError()
	}

	return level.NewFilter(next, allowed)
}

// DefaultCaller produces a contextual logger as with log.With, but
// automatically prepends the caller under CallerKey.
//
// Do not decorate the returned logger further, or the recorded callstack
// location will point at the decorators.
func DefaultCaller(next log.Logger, keyvals ...interface{}) log.Logger {
	return log.WithPrefix(
		next,
		append([]interface{}{CallerKey(), log.DefaultCaller}, keyvals...)...,
	)
}

func leveled(value level.Value, next log.Logger, keyvals []interface{}) log.Logger {
	return log.WithPrefix(
		next,
		append([]interface{}{CallerKey(), log.DefaultCaller, level.Key(), value}, keyvals...)...,
	)
}

// Error prefixes the returned logger with the caller and a constant ERROR level,
// followed by any additional key value pairs.
func Error(next log.Logger, keyvals ...interface{}) log.Logger {
	return leveled(level.ErrorValue(), next, keyvals)
}

// Warn prefixes the returned logger with the caller and a constant WARN level,
// followed by any additional key value pairs.
func Warn(next log.Logger, keyvals ...interface{}) log.Logger {
	return leveled(level.WarnValue(), next, keyvals)
}

// Info prefixes the returned logger with the caller and a constant INFO level,
// followed by any additional key value pairs.
func Info(next log.Logger, keyvals ...interface{}) log.Logger {
	return leveled(level.InfoValue(), next, keyvals)
}

// Debug prefixes the returned logger with the caller and a constant DEBUG level,
// followed by any additional key value pairs.
func Debug(next log.Logger, keyvals ...interface{}) log.Logger {
	return leveled(level.DebugValue(), next, keyvals)
}
