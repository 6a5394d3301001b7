package relay

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the relay's Prometheus collectors. Each server owns its
// registry so several servers can coexist in one process (tests).
type metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	remoteLatency  *prometheus.HistogramVec
	remoteFailures *prometheus.CounterVec
	rateLimited    prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evoconnect_relay_requests_total",
			Help: "Relay requests by route and status code",
		}, []string{"route", "code"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evoconnect_relay_request_duration_seconds",
			Help:    "Time spent answering relay requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		remoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evoconnect_evolution_call_duration_seconds",
			Help:    "Latency of Evolution API calls by operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		remoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evoconnect_evolution_call_failures_total",
			Help: "Evolution API calls that produced no usable answer",
		}, []string{"operation", "type"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "evoconnect_relay_rate_limited_total",
			Help: "Requests rejected by the per-client rate limit",
		}),
	}
}

func (m *metrics) observeRequest(route string, status int, d time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route).Observe(d.Seconds())
}

func (m *metrics) observeRemote(operation string, d time.Duration) {
	m.remoteLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *metrics) remoteFailed(operation, errType string) {
	m.remoteFailures.WithLabelValues(operation, errType).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
