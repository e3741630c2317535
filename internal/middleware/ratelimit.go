package middleware

import (
	"net/http"
	"strconv"

	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/httputil"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
	"github.com/seanotes/seanotes/internal/ratelimit"
)

// RateLimiter enforces a fixed-window policy per user or client IP.
type RateLimiter struct {
	limiter *ratelimit.Limiter
	policy  ratelimit.Policy
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// rateLimitResponse is the 429 body.
type rateLimitResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetTime  string `json:"resetTime"`
}

// NewRateLimiter creates a rate limiting middleware for policy.
func NewRateLimiter(limiter *ratelimit.Limiter, policy ratelimit.Policy, logger *logging.Logger, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		policy:  policy,
		logger:  logger,
		metrics: m,
	}
}

// Handler returns the rate limiting middleware handler
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Use user ID if authenticated, otherwise use IP address
		key := GetUserID(r.Context())
		if key == "" {
			key = "ip:" + httputil.ClientIP(r)
		}

		result, err := rl.limiter.Allow(r.Context(), rl.policy, key)
		if err != nil {
			rl.logger.WithContext(r.Context()).WithError(err).WithField("policy", rl.policy.Name).
				Warn("Rate limit store unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(result.RetryAfter(rl.limiter.Now()).Seconds())

			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"key":    key,
				"policy": rl.policy.Name,
				"path":   r.URL.Path,
				"method": r.Method,
			})
			rl.metrics.RecordRateLimited(rl.policy.Name)

			se := errors.RateLimitExceeded(result.Limit, rl.policy.Window.String())
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteJSON(w, se.HTTPStatus, rateLimitResponse{
				Error:      se.Message,
				RetryAfter: retryAfter,
				Limit:      result.Limit,
				Remaining:  0,
				ResetTime:  result.ResetAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
