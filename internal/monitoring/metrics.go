package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	latencyHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
	loginTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauth_login_transitions_total",
			Help: "OAuth login state machine transitions by provider and target state",
		},
		[]string{"provider", "state"},
	)
	syncOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_total",
			Help: "Downstream CRM synchronization attempts by outcome",
		},
		[]string{"outcome"},
	)

	registerOnce sync.Once
)

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestCounter, latencyHistogram, loginTransitions, syncOutcomes)
	})
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(path, method, status string, seconds float64) {
	requestCounter.WithLabelValues(path, method, status).Inc()
	latencyHistogram.WithLabelValues(path, method).Observe(seconds)
}

// LoginTransition counts a login state machine transition.
func LoginTransition(provider, state string) {
	loginTransitions.WithLabelValues(provider, state).Inc()
}

// SyncOutcome counts a CRM sync result: created, updated, skipped or failed.
func SyncOutcome(outcome string) {
	syncOutcomes.WithLabelValues(outcome).Inc()
}
