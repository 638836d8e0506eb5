package middleware

import (
	"net/http"
	"time"

	"github.com/maxiofs/ps3/internal/sandbox"
	"github.com/sirupsen/logrus"
)

// responseWriterWrapper captures the status code written by downstream
// handlers so it can be logged after the request completes.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	size       int64
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriterWrapper) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

// Logging returns a middleware that logs every request as a single
// structured logrus entry once it completes.
func Logging(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriterWrapper{ResponseWriter: w}

			next.ServeHTTP(rw, r)

			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rw.statusCode,
				"size":        rw.size,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}
			if task, ok := sandbox.TaskFromContext(r.Context()); ok {
				fields["task_id"] = string(task)
			}
			logger.WithFields(fields).Info("http request")
		})
	}
}
