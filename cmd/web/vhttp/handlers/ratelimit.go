package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	logRateLimiterDisabled    = "rate limiter: disabled, wrapping as noop"
	logRateLimitThrottled     = "rate limit: throttling request, will continue after delay"
	logRateLimitAboveMaxDelay = "rate limit: aborting request, above max allowed delay"
)

// TakeMaxDuration is the part of the token bucket the middleware needs,
// *ratelimit.Bucket implements it.
type TakeMaxDuration interface {
	TakeMaxDuration(count int64, maxWait time.Duration) (time.Duration, bool)
}

// WithRateLimiter delays or rejects requests exceeding the bucket's rate. A
// nil bucket disables limiting.
func WithRateLimiter(logger logrus.FieldLogger, b TakeMaxDuration, maxDelay time.Duration) HandlerWrapper {
	if b == nil {
		return func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				logger.Debug(logRateLimiterDisabled)
				h.ServeHTTP(w, r)
			})
		}
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logger.WithFields(logrus.Fields{
				"remote_addr": r.RemoteAddr,
				string(RequestID): r.Context().Value(RequestID),
				"max_delay":   maxDelay,
			})

			d, ok := b.TakeMaxDuration(1, maxDelay)
			if !ok {
				logger.Warn(logRateLimitAboveMaxDelay)

				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprint(w, "Server busy, request aborted")
				return
			}

			if d > 0 {
				logger.WithField("delay", d).Warn(logRateLimitThrottled)
				time.Sleep(d)
			}

			h.ServeHTTP(w, r)
		})
	}
}
