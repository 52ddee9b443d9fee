/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector is an interface for collecting admission metrics.
type MetricsCollector interface {
	// IncAdmissions increments the number of admitted requests.
	IncAdmissions()
	// IncAdmissionCancellations increments the number of admissions cancelled while waiting.
	IncAdmissionCancellations()
	// ObserveAdmissionWait observes how long a caller waited for admission.
	ObserveAdmissionWait(d time.Duration)
	// SetWindowSize sets the current number of tracked admissions.
	SetWindowSize(size int)
	// AddEvictions adds the number of evicted admission timestamps.
	AddEvictions(n int)
}

type disabledMetrics struct{}

func (disabledMetrics) IncAdmissions()                     {}
func (disabledMetrics) IncAdmissionCancellations()         {}
func (disabledMetrics) ObserveAdmissionWait(time.Duration) {}
func (disabledMetrics) SetWindowSize(int)                  {}
func (disabledMetrics) AddEvictions(int)                   {}

// DefaultAdmissionWaitBuckets is default buckets for admission wait histogram.
var DefaultAdmissionWaitBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// PrometheusMetricsOpts represents options for PrometheusMetricsCollector.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string
	// AdmissionWaitBuckets is a list of buckets for the admission wait histogram.
	// DefaultAdmissionWaitBuckets is used if empty.
	AdmissionWaitBuckets []float64
	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetricsCollector is a Prometheus metrics collector for admitters.
type PrometheusMetricsCollector struct {
	Admissions             prometheus.Counter
	AdmissionCancellations prometheus.Counter
	AdmissionWait          prometheus.Histogram
	WindowSize             prometheus.Gauge
	Evictions              prometheus.Counter
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector.
func NewPrometheusMetricsCollector() *PrometheusMetricsCollector {
	return NewPrometheusMetricsCollectorWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsCollectorWithOpts creates a new Prometheus metrics collector with the provided options.
func NewPrometheusMetricsCollectorWithOpts(opts PrometheusMetricsOpts) *PrometheusMetricsCollector {
	buckets := opts.AdmissionWaitBuckets
	if len(buckets) == 0 {
		buckets = DefaultAdmissionWaitBuckets
	}
	return &PrometheusMetricsCollector{
		Admissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "admissions_total",
			Help:        "Number of requests admitted by the rate limiter.",
			ConstLabels: opts.ConstLabels,
		}),
		AdmissionCancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_cancellations_total",
			Help:        "Number of admissions cancelled while waiting for a free slot.",
			ConstLabels: opts.ConstLabels,
		}),
		AdmissionWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_wait_seconds",
			Help:        "Time spent waiting for admission.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}),
		WindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "window_size",
			Help:        "Number of admissions tracked within the current window.",
			ConstLabels: opts.ConstLabels,
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "evictions_total",
			Help:        "Number of admission timestamps evicted from the window.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(pm.Admissions, pm.AdmissionCancellations, pm.AdmissionWait, pm.WindowSize, pm.Evictions)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(pm.Admissions)
	prometheus.Unregister(pm.AdmissionCancellations)
	prometheus.Unregister(pm.AdmissionWait)
	prometheus.Unregister(pm.WindowSize)
	prometheus.Unregister(pm.Evictions)
}

// IncAdmissions increments the number of admitted requests.
func (pm *PrometheusMetricsCollector) IncAdmissions() {
	pm.Admissions.Inc()
}

// IncAdmissionCancellations increments the number of cancelled admissions.
func (pm *PrometheusMetricsCollector) IncAdmissionCancellations() {
	pm.AdmissionCancellations.Inc()
}

// ObserveAdmissionWait observes the admission wait duration.
func (pm *PrometheusMetricsCollector) ObserveAdmissionWait(d time.Duration) {
	pm.AdmissionWait.Observe(d.Seconds())
}

// SetWindowSize sets the current window size.
func (pm *PrometheusMetricsCollector) SetWindowSize(size int) {
	pm.WindowSize.Set(float64(size))
}

// AddEvictions adds the number of evicted timestamps.
func (pm *PrometheusMetricsCollector) AddEvictions(n int) {
	pm.Evictions.Add(float64(n))
}
