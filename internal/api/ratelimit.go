package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit wraps next with a process-wide token bucket. rps <= 0 disables
// limiting entirely.
func RateLimit(rps float64, burst int, next http.Handler) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lim.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "rate_limited", "request rate exceeds configured limit", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
