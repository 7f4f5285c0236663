package xhttp

import (
	"net/http"

	"github.com/go-kit/kit/log/level"
	"github.com/xmidt-org/hestia/logging"
	"github.com/xmidt-org/hestia/semaphore"
)

// Busy creates an Alice-style constructor that limits the number of HTTP transactions handled by
// decorated handlers.  The supplied semaphore is the server's request worker pool:  a decorated
// handler blocks waiting on it until the request's context is canceled.  If a transaction is not
// allowed to proceed, http.StatusServiceUnavailable is written.
//
// The same semaphore may be shared with the low-resource monitor so that worker pool pressure
// feeds the server's degradation logic.
func Busy(s semaphore.Interface) func(http.Handler) http.Handler {
	if s == nil {
		panic("A semaphore is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			ctx := request.Context()

			if err := s.AcquireCtx(ctx); err != nil {
				logging.GetLogger(ctx).Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "server busy", logging.ErrorKey(), err)
				WriteError(response, http.StatusServiceUnavailable, "server busy")
				return
			}

			defer s.Release()
			next.ServeHTTP(response, request)
		})
	}
}

// MaxTransactions is a convenience for Busy with a dedicated semaphore of the given size.
func MaxTransactions(max int) func(http.Handler) http.Handler {
	return Busy(semaphore.New(max))
}
