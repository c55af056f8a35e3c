// Package metrics exposes Prometheus collectors for an archive crawl.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so several runs (or tests) in one process
// never collide on collector registration.
type Recorder struct {
	registry *prometheus.Registry
	site     string

	outcomesTotal        *prometheus.CounterVec
	fetchAttempts        *prometheus.HistogramVec
	fetchDurationSeconds *prometheus.HistogramVec
	fetchFailuresTotal   *prometheus.CounterVec
	activeWorkers        *prometheus.GaugeVec
}

// New builds a Recorder whose series carry the given site label.
func New(site string) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		site:     site,
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_outcomes_total",
				Help: "Crawl task outcomes, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		),
		fetchAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_fetch_attempts",
				Help:    "Attempts used per fetch, labeled by page kind.",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
			[]string{"site", "kind"},
		),
		fetchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_fetch_duration_seconds",
				Help:    "Wall time per fetch including retries and politeness pauses.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"site", "kind"},
		),
		fetchFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_fetch_failures_total",
				Help: "Fetches that exhausted their attempts, labeled by kind and reason.",
			},
			[]string{"site", "kind", "reason"},
		),
		activeWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archive_active_workers",
				Help: "Workers currently running, labeled by tier.",
			},
			[]string{"site", "tier"},
		),
	}
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveOutcome adds n to the outcome counter.
func (r *Recorder) ObserveOutcome(outcome string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.outcomesTotal.WithLabelValues(r.site, outcome).Add(float64(n))
}

// ObserveFetch records one finished fetch.
func (r *Recorder) ObserveFetch(kind string, attempts int, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.fetchAttempts.WithLabelValues(r.site, kind).Observe(float64(attempts))
	r.fetchDurationSeconds.WithLabelValues(r.site, kind).Observe(elapsed.Seconds())
	if err != nil {
		r.fetchFailuresTotal.WithLabelValues(r.site, kind, failureReason(err)).Inc()
	}
}

// WorkerStarted increments the active worker gauge for tier.
func (r *Recorder) WorkerStarted(tier string) {
	if r == nil {
		return
	}
	r.activeWorkers.WithLabelValues(r.site, tier).Inc()
}

// WorkerStopped decrements the active worker gauge for tier.
func (r *Recorder) WorkerStopped(tier string) {
	if r == nil {
		return
	}
	r.activeWorkers.WithLabelValues(r.site, tier).Dec()
}

type statusCoder interface {
	HTTPStatus() int
}

// failureReason keeps label cardinality bounded.
func failureReason(err error) string {
	var sc statusCoder
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &sc):
		switch code := sc.HTTPStatus(); {
		case code >= 500:
			return "status_5xx"
		case code >= 400:
			return "status_4xx"
		default:
			return "status_other"
		}
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
