package ratelimiter

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit/telemetry"
)

//nolint:gochecknoglobals // instruments are created once per process
var rejectedRequests = telemetry.DimensionlessMeasure(
	"github.com/pitabwire/sitekit/ratelimiter", "/rejected", "Requests refused by the rate limiter")

type middlewareOptions struct {
	keyFunc func(*http.Request) string
	skip    func(*http.Request) bool
}

// MiddlewareOption configures RateLimitMiddleware.
type MiddlewareOption func(*middlewareOptions)

// WithKeyFunc replaces the client IP as the limiting key.
func WithKeyFunc(fn func(*http.Request) string) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.keyFunc = fn
	}
}

// WithSkip exempts requests for which fn returns true.
func WithSkip(fn func(*http.Request) bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.skip = fn
	}
}

// SkipHeader exempts requests carrying header name with exactly value.
// An empty value exempts nothing.
func SkipHeader(name, value string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		return value != "" && r.Header.Get(name) == value
	}
}

// GetIP extracts caller IP from request headers or the remote address.
func GetIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}

	ip := util.GetIP(r)
	if ip == "" {
		return "unknown"
	}
	return ip
}

// RateLimitMiddleware answers 429 Too Many Requests once limiter refuses the key.
// A nil limiter disables limiting.
func RateLimitMiddleware(limiter Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := &middlewareOptions{keyFunc: GetIP}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || (o.skip != nil && o.skip(r)) {
				next.ServeHTTP(w, r)
				return
			}

			key := o.keyFunc(r)
			d := limiter.Take(r.Context(), key)
			setHeaders(w.Header(), d)
			if !d.Allowed {
				util.Log(r.Context()).WithField("key", key).Debug("request rate limited")
				rejectedRequests.Add(r.Context(), 1)
				rateLimitedResponse(w, d)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(h http.Header, d Decision) {
	if d.Limit <= 0 {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}

func rateLimitedResponse(w http.ResponseWriter, d Decision) {
	retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
	if retryAfter <= 0 {
		retryAfter = int(time.Second.Seconds())
	}

	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}
