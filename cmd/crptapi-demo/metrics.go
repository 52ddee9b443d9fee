/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"github.com/acronis/go-crptapi/crptapi"
	"github.com/acronis/go-crptapi/service"
)

const metricsNamespace = "crptapi_demo"

type demoMetrics struct {
	submissions *crptapi.PrometheusMetricsCollector
	limiter     *crptapi.LimiterPrometheusMetricsCollector
}

var _ service.MetricsRegisterer = (*demoMetrics)(nil)

func newDemoMetrics() *demoMetrics {
	return &demoMetrics{
		submissions: crptapi.NewPrometheusMetricsCollector(metricsNamespace),
		limiter:     crptapi.NewLimiterPrometheusMetricsCollector(metricsNamespace),
	}
}

func (m *demoMetrics) MustRegisterMetrics() {
	m.submissions.MustRegister()
	m.limiter.MustRegister()
}

func (m *demoMetrics) UnregisterMetrics() {
	m.submissions.Unregister()
	m.limiter.Unregister()
}
