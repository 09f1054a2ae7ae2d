package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the state core. Every method is safe
// on a nil *Collector so stores can run without metrics in tests.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Store metrics
	Mutations     *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	ExternalCalls *prometheus.CounterVec
	ExternalTime  *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_mutations_total",
				Help:      "Committed store mutations by store and operation",
			},
			[]string{"store", "operation"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workspace_transitions_total",
				Help:      "Workspace switch transitions by outcome",
			},
			[]string{"outcome"},
		),
		ExternalCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_calls_total",
				Help:      "Calls to external collaborators by outcome",
			},
			[]string{"collaborator", "operation", "outcome"},
		),
		ExternalTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "external_call_duration_seconds",
				Help:      "Duration of calls to external collaborators",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collaborator", "operation"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Mutations,
		c.Transitions,
		c.ExternalCalls,
		c.ExternalTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry (used by tests).
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordMutation(store, operation string) {
	if c == nil {
		return
	}
	c.Mutations.WithLabelValues(store, operation).Inc()
}

func (c *Collector) RecordTransition(outcome string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordExternalCall(collaborator, operation string, started time.Time, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.ExternalCalls.WithLabelValues(collaborator, operation, outcome).Inc()
	c.ExternalTime.WithLabelValues(collaborator, operation).Observe(time.Since(started).Seconds())
}

func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
