// Package metrics exposes the dispatcher's Prometheus instrumentation:
// match outcome counts, score distribution, and candidate-set size.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the dispatcher's metric instruments, registered
// against a private registry so embedding this server doesn't collide
// with a host process's own default Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	candidateSet    prometheus.Histogram
	matchScore      prometheus.Histogram
	dispatchSeconds prometheus.Histogram
}

// Outcome labels the requestsTotal counter.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeCORS      Outcome = "cors_preflight"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimeout   Outcome = "timeout"
)

// New constructs a Recorder with all instruments registered.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pact_stub_requests_total",
			Help: "Total requests dispatched, by outcome.",
		}, []string{"outcome"}),
		candidateSet: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pact_stub_candidate_set_size",
			Help:    "Number of candidates surviving method+path narrowing.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		matchScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pact_stub_match_score",
			Help:    "Mismatch score of the best-miss candidate when no interaction matched perfectly.",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		dispatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pact_stub_dispatch_duration_seconds",
			Help:    "End-to-end dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(r.requestsTotal, r.candidateSet, r.matchScore, r.dispatchSeconds)
	return r
}

// Handler serves the registry's metrics in the Prometheus exposition
// format, mounted by the server at /metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveOutcome increments the outcome counter.
func (r *Recorder) ObserveOutcome(outcome Outcome) {
	r.requestsTotal.WithLabelValues(string(outcome)).Inc()
}

// ObserveCandidateSetSize records the narrowed candidate count.
func (r *Recorder) ObserveCandidateSetSize(n int) {
	r.candidateSet.Observe(float64(n))
}

// ObserveScore records the winning or best-miss mismatch score.
func (r *Recorder) ObserveScore(score int) {
	r.matchScore.Observe(float64(score))
}

// ObserveDispatchSeconds records end-to-end dispatch latency.
func (r *Recorder) ObserveDispatchSeconds(seconds float64) {
	r.dispatchSeconds.Observe(seconds)
}
