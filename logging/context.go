package logging

import (
	"context"

	"github.com/go-kit/kit/log"
)

type contextKey uint32

const loggerKey contextKey = 1

// WithLogger associates a Logger with the context for retrieval by GetLogger.
// Handlers use this to flow a request scoped logger to downstream code.
func WithLogger(parent context.Context, logger log.Logger) context.Context {
	return context.WithValue(parent, loggerKey, logger)
}

// GetLogger returns the Logger carried by the context, or DefaultLogger()
// when the context carries none
func GetLogger(ctx context.Context) log.Logger {
	if logger, ok := ctx.Value(loggerKey).(log.Logger); ok {
		return logger
	}

	return DefaultLogger()
}
