package middleware

import (
	"net/http"
	"strings"
)

// corsConfig holds the CORS headers this server always sends: it is a
// fixed set tuned for browser-based S3 clients, not a per-deployment knob.
type corsConfig struct {
	allowedOrigins []string
	allowedMethods []string
	allowedHeaders []string
	exposedHeaders []string
	maxAge         string
}

func defaultCORSConfig() *corsConfig {
	return &corsConfig{
		allowedOrigins: []string{"*"},
		allowedMethods: []string{
			"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS",
		},
		allowedHeaders: []string{
			"Accept",
			"Accept-Language",
			"Content-Language",
			"Content-Type",
			"X-Amz-*",
			"X-Ps3-Sandbox-Owner",
			"X-Requested-With",
			"Cache-Control",
			"If-Match",
			"If-Modified-Since",
			"If-None-Match",
			"If-Unmodified-Since",
			"Range",
		},
		exposedHeaders: []string{
			"ETag",
			"x-amz-*",
			"Content-Length",
			"Content-Range",
			"Content-Type",
			"Date",
			"Last-Modified",
			"Server",
		},
		maxAge: "3600",
	}
}

// CORS returns a middleware that answers preflight requests and annotates
// every response with the headers browser-based S3 clients need.
func CORS() func(http.Handler) http.Handler {
	config := defaultCORSConfig()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && config.hasWildcardOrigin() {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(config.allowedMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(config.allowedHeaders, ", "))
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(config.exposedHeaders, ", "))
			w.Header().Set("Access-Control-Max-Age", config.maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (c *corsConfig) hasWildcardOrigin() bool {
	for _, origin := range c.allowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
