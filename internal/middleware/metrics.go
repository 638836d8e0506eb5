package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/maxiofs/ps3/internal/metrics"
)

// Metrics records request counts and latency into reg.
func Metrics(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriterWrapper{ResponseWriter: w}

			next.ServeHTTP(rw, r)

			status := rw.statusCode
			if status == 0 {
				status = http.StatusOK
			}
			reg.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			reg.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
