package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc extracts the rate limit key from a request. An empty key skips
// limiting for that request.
type KeyFunc func(r *http.Request) string

// DeniedFunc writes the response for a limited request.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// Middleware enforces limiter on every request keyed by keyFunc. Limited
// requests get a Retry-After header (whole seconds, at least 1) and are
// answered by denied. Limiter errors let the request through.
func Middleware(limiter Limiter, keyFunc KeyFunc, denied DeniedFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				denied(w, r, d.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc keys by the host part of RemoteAddr. X-Forwarded-For is not
// trusted since any client can set it. Behind a trusted proxy, have the proxy
// rewrite RemoteAddr instead.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return "ip:" + host
}
