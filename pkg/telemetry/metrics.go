package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openintent_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openintent_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Coordination-domain metrics.
var (
	ActiveLeases = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openintent_active_leases",
		Help: "Number of currently unreleased, unexpired leases.",
	})

	SSESubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "openintent_sse_subscribers",
		Help: "Number of connected SSE subscribers per channel.",
	}, []string{"channel"})

	SSEQueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openintent_sse_queue_drops_total",
		Help: "Events dropped because a subscriber's bounded queue was full.",
	}, []string{"channel"})

	GovernanceViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openintent_governance_violations_total",
		Help: "governance.violation events emitted, by violated policy rule.",
	}, []string{"rule"})

	FederationDispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openintent_federation_dispatches_total",
		Help: "Outbound federation dispatch attempts, by result.",
	}, []string{"status"})
)

// Handler exposes the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
