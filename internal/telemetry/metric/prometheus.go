package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

const namespace = "pairlink"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Session lifecycle
	SessionTransitions  *prometheus.CounterVec
	PairingCodesIssued  prometheus.Counter
	ReconnectsScheduled prometheus.Counter
	ReconnectDelay      prometheus.Histogram
	CredentialOps       *prometheus.CounterVec

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthFailures    *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
		PairingCodesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairing_codes_issued_total",
			Help:      "Pairing artifacts handed to callers.",
		}),
		ReconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a retryable close.",
		}),
		ReconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay before reconnect attempts.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 60},
		}),
		CredentialOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_operations_total",
			Help:      "Credential store operations by result.",
		}, []string{"op", "result"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected API requests by reason.",
		}, []string{"reason"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.SessionTransitions,
		r.PairingCodesIssued,
		r.ReconnectsScheduled,
		r.ReconnectDelay,
		r.CredentialOps,
		r.RequestsTotal,
		r.RequestDuration,
		r.AuthFailures,
		r.RateLimited,
	)
	return r
}

// Registerer returns the registerer for extra collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer returns the gatherer behind Handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Transition records a session state change.
func (r *Registry) Transition(from, to domain.State) {
	r.SessionTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// PairingIssued records a new pairing artifact.
func (r *Registry) PairingIssued() {
	r.PairingCodesIssued.Inc()
}

// ReconnectScheduled records a scheduled reconnect.
func (r *Registry) ReconnectScheduled(delay time.Duration) {
	r.ReconnectsScheduled.Inc()
	r.ReconnectDelay.Observe(delay.Seconds())
}

// CredentialOp records a credential store call.
func (r *Registry) CredentialOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.CredentialOps.WithLabelValues(op, result).Inc()
}

// RecordRequest counts a served HTTP request.
func (r *Registry) RecordRequest(method, route, status string) {
	r.RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// ObserveRequestDuration records HTTP request latency.
func (r *Registry) ObserveRequestDuration(method, route string, seconds float64) {
	r.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordAuthFailure counts a rejected API request.
func (r *Registry) RecordAuthFailure(reason string) {
	r.AuthFailures.WithLabelValues(reason).Inc()
}

// IncRateLimited counts a request rejected by the rate limiter.
func (r *Registry) IncRateLimited() {
	r.RateLimited.Inc()
}

// WatchCertificate exports the serving certificate's expiry, read at
// scrape time so rotations show up without re-registering.
func (r *Registry) WatchCertificate(notAfter func() time.Time) error {
	return r.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tls_certificate_expiry_timestamp_seconds",
		Help:      "Unix time at which the serving certificate expires.",
	}, func() float64 {
		return float64(notAfter().Unix())
	}))
}
