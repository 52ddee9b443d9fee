/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package crptapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-crptapi/internal/libinfo"
	"github.com/acronis/go-crptapi/internal/ratelimit"
)

// SubmissionOutcome is an outcome of a single CreateDocument call.
type SubmissionOutcome string

// Submission outcomes.
const (
	SubmissionOutcomeSuccess            SubmissionOutcome = "success"
	SubmissionOutcomeAPIError           SubmissionOutcome = "api_error"
	SubmissionOutcomeTransportError     SubmissionOutcome = "transport_error"
	SubmissionOutcomeAdmissionCancelled SubmissionOutcome = "admission_cancelled"
	SubmissionOutcomeClientClosed       SubmissionOutcome = "client_closed"
	SubmissionOutcomeAdmissionFailed    SubmissionOutcome = "admission_failed"
)

// MetricsCollector collects metrics of document submissions.
type MetricsCollector interface {
	// ObserveSubmission is called once per CreateDocument call.
	// The duration covers the HTTP exchange only and is zero when the request was never sent.
	ObserveSubmission(outcome SubmissionOutcome, duration time.Duration)
}

// LimiterMetricsCollector collects metrics of the client-side rate limiter.
type LimiterMetricsCollector = ratelimit.MetricsCollector

// LimiterPrometheusMetricsCollector is a Prometheus implementation of LimiterMetricsCollector.
type LimiterPrometheusMetricsCollector = ratelimit.PrometheusMetricsCollector

// NewLimiterPrometheusMetricsCollector creates a Prometheus collector for the client-side rate limiter.
// Metric names are prefixed with namespace and the "limiter" subsystem.
func NewLimiterPrometheusMetricsCollector(namespace string) *LimiterPrometheusMetricsCollector {
	ns := "limiter"
	if namespace != "" {
		ns = namespace + "_" + ns
	}
	return ratelimit.NewPrometheusMetricsCollectorWithOpts(ratelimit.PrometheusMetricsOpts{
		Namespace:   ns,
		ConstLabels: libinfo.AddPrometheusLibVersionLabel(nil),
	})
}

type disabledMetrics struct{}

func (disabledMetrics) ObserveSubmission(SubmissionOutcome, time.Duration) {}

// PrometheusMetricsCollector is a Prometheus metrics collector for document submissions.
type PrometheusMetricsCollector struct {
	Submissions        *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector for document submissions.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	constLabels := libinfo.AddPrometheusLibVersionLabel(nil)
	return &PrometheusMetricsCollector{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "document_submissions_total",
			Help:        "Number of document submissions by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		SubmissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "document_submission_duration_seconds",
			Help:        "Duration of document submission HTTP exchanges.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(pm.Submissions, pm.SubmissionDuration)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(pm.Submissions)
	prometheus.Unregister(pm.SubmissionDuration)
}

// ObserveSubmission counts the submission and observes its duration if the request was sent.
func (pm *PrometheusMetricsCollector) ObserveSubmission(outcome SubmissionOutcome, duration time.Duration) {
	pm.Submissions.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case SubmissionOutcomeAdmissionCancelled, SubmissionOutcomeClientClosed, SubmissionOutcomeAdmissionFailed:
		return
	}
	pm.SubmissionDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}
