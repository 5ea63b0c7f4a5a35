// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Link kinds used as the "kind" label of LinksRewritten.
const (
	KindHeader = "header"
	KindHTML   = "html"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	LinksRewritten *prometheus.CounterVec

	// prefixes are the bounded path labels, longest first.
	prefixes []string
}

// DefaultPath is where the metrics endpoint is served unless configured.
const DefaultPath = "/metrics"

// fixedPrefixes are served by the proxy itself, next to the metrics path.
var fixedPrefixes = []string{"/healthz", "/proxy/status"}

// New creates a Metrics instance with a custom registry and all collectors
// registered. metricsPath is the path of the metrics endpoint ("" for
// DefaultPath) and mounts are the normalized mount paths; each becomes a path
// label.
func New(metricsPath string, mounts ...string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mount_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mount_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mount_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mount_proxy_upstream_request_duration_seconds",
			Help:    "Backend call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mount_proxy_upstream_responses_total",
			Help: "Total backend responses by method and status code.",
		}, []string{"method", "status_code"}),

		LinksRewritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mount_proxy_links_rewritten_total",
			Help: "Links mapped from backend space to client space, by where they were found.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.LinksRewritten,
	)

	if metricsPath == "" {
		metricsPath = DefaultPath
	}
	m.prefixes = append(m.prefixes, fixedPrefixes...)
	m.prefixes = append(m.prefixes, metricsPath)
	for _, mount := range mounts {
		if mount == "" {
			mount = "/"
		}
		m.prefixes = append(m.prefixes, mount)
	}
	sort.SliceStable(m.prefixes, func(i, j int) bool {
		return len(m.prefixes[i]) > len(m.prefixes[j])
	})

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizePath returns a bounded path label for Prometheus metrics: the
// longest route or mount prefix covering path, or "other".
func (m *Metrics) NormalizePath(path string) string {
	for _, prefix := range m.prefixes {
		if prefix == "/" {
			return prefix
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
