package middleware

import (
	"net/http"
	"sync/atomic"
)

// Metrics returns middleware feeding the counters reported by the /metrics
// endpoint. Requests counts every call; failures counts responses at or
// above 400, so a 404 on an unknown investigation shows up the same as a
// tier failure.
func Metrics(requests, failures *atomic.Int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			if rw.statusCode >= 400 {
				failures.Add(1)
			}
		})
	}
}
