/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package fakeregistry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics represents metrics of the fake registry.
type PrometheusMetrics struct {
	Requests *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new metrics collector of the fake registry.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fake_registry_requests_total",
			Help:      "Number of document creation requests received by the fake registry.",
		}, []string{"status"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Requests)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Requests)
}

func (pm *PrometheusMetrics) incRequests(status int) {
	pm.Requests.WithLabelValues(strconv.Itoa(status)).Inc()
}
