// Package metrics exposes the Prometheus collectors the HTTP metrics
// middleware updates as requests flow through the server, plus a sandbox
// owner gauge that is polled on every scrape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups the gauges/counters/histograms this server exposes under
// its own prometheus.Registerer so tests can construct isolated instances.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SandboxOwners   prometheus.GaugeFunc
}

// NewRegistry builds a fresh, isolated metrics registry. ownerCount is
// polled on every scrape to report the ps3_sandbox_owners gauge; pass the
// sandbox registry's OwnerCount method, or a func returning 0 where no
// sandbox registry exists.
func NewRegistry(ownerCount func() int) *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ps3_http_requests_total",
			Help: "Total HTTP requests handled, labeled by method and status.",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ps3_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		SandboxOwners: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ps3_sandbox_owners",
			Help: "Number of currently registered sandbox owners.",
		}, func() float64 { return float64(ownerCount()) }),
	}
}

// Gatherer exposes the underlying registry for the /metrics HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
