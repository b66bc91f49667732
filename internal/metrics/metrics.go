// Package metrics provides Prometheus metrics for the dashboard service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	SuggestionsCreated *prometheus.CounterVec
	UpstreamRequests   *prometheus.CounterVec
	UpstreamDuration   *prometheus.HistogramVec
	FallbacksTotal     *prometheus.CounterVec
	ProjectsByHealth   *prometheus.GaugeVec
	RefreshRunsTotal   *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_http_requests_total",
				Help: "Total number of API requests by route and status code.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_http_request_duration_seconds",
				Help:    "API request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SuggestionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_suggestions_created_total",
				Help: "Suggestions created by source.",
			},
			[]string{"source"},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_upstream_requests_total",
				Help: "Requests to external collaborators by service and result.",
			},
			[]string{"service", "result"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_upstream_request_duration_seconds",
				Help:    "External collaborator latency by service.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_fallbacks_total",
				Help: "Times a collaborator degraded to its fallback value.",
			},
			[]string{"service"},
		),
		ProjectsByHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_projects_by_health",
				Help: "Projects per health bucket at the last portfolio computation.",
			},
			[]string{"status"},
		),
		RefreshRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_refresh_runs_total",
				Help: "Flow refresh runs by result.",
			},
			[]string{"result"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.SuggestionsCreated,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.FallbacksTotal,
		m.ProjectsByHealth,
		m.RefreshRunsTotal,
		m.ErrorsTotal,
	)

	return m
}

// Registry exposes the private registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordSuggestion increments the created-suggestion counter.
func (m *Metrics) RecordSuggestion(source string) {
	m.SuggestionsCreated.WithLabelValues(source).Inc()
}

// RecordUpstream counts one collaborator call and its latency.
func (m *Metrics) RecordUpstream(service, result string, seconds float64) {
	m.UpstreamRequests.WithLabelValues(service, result).Inc()
	m.UpstreamDuration.WithLabelValues(service).Observe(seconds)
}

// RecordFallback increments the fallback counter.
func (m *Metrics) RecordFallback(service string) {
	m.FallbacksTotal.WithLabelValues(service).Inc()
}

// SetHealthCounts publishes the portfolio health buckets.
func (m *Metrics) SetHealthCounts(healthy, atRisk, critical int) {
	m.ProjectsByHealth.WithLabelValues("healthy").Set(float64(healthy))
	m.ProjectsByHealth.WithLabelValues("at-risk").Set(float64(atRisk))
	m.ProjectsByHealth.WithLabelValues("critical").Set(float64(critical))
}

// RecordRefresh increments the refresh counter.
func (m *Metrics) RecordRefresh(result string) {
	m.RefreshRunsTotal.WithLabelValues(result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
