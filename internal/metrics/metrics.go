// Package metrics holds the bridge's Prometheus instruments.
//
// A Metrics value owns its own registry so tests can create isolated
// instances. Every recording method is safe on a nil *Metrics, which lets
// components treat metrics as optional.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "midea_bridge"

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeOffline = "offline"
	OutcomeSkipped = "skipped"
)

// Metrics groups the bridge instruments.
type Metrics struct {
	registry *prometheus.Registry

	cloudRequests    *prometheus.CounterVec
	cloudLatency     *prometheus.HistogramVec
	recoveries       *prometheus.CounterVec
	hubPushes        *prometheus.CounterVec
	devicePushes     *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	lastRefresh      *prometheus.GaugeVec
	events           *prometheus.CounterVec
	streamReconnects prometheus.Counter
	rosterSize       prometheus.Gauge
}

// New creates the instruments and registers them with a fresh registry
// alongside the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cloudRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cloud_requests_total",
			Help:      "Midea cloud requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		cloudLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cloud_request_duration_seconds",
			Help:      "Midea cloud round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cloud_recoveries_total",
			Help:      "Recovery actions taken for cloud error codes.",
		}, []string{"action"}),
		hubPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_pushes_total",
			Help:      "Property values written to the hub.",
		}, []string{"device", "outcome"}),
		devicePushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_pushes_total",
			Help:      "Property values applied to devices.",
		}, []string{"device", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_refreshes_total",
			Help:      "Device state refreshes.",
		}, []string{"device", "outcome"}),
		lastRefresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful device refresh or push.",
		}, []string{"device"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_events_total",
			Help:      "Hub stream events by outcome.",
		}, []string{"outcome"}),
		streamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_stream_reconnects_total",
			Help:      "Hub event stream resubscriptions.",
		}),
		rosterSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roster_appliances",
			Help:      "Configured appliances present in the current cloud roster.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cloudRequests,
		m.cloudLatency,
		m.recoveries,
		m.hubPushes,
		m.devicePushes,
		m.refreshes,
		m.lastRefresh,
		m.events,
		m.streamReconnects,
		m.rosterSize,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CloudRequest records one cloud round trip.
func (m *Metrics) CloudRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cloudRequests.WithLabelValues(endpoint, outcome).Inc()
	m.cloudLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// Recovery records a recovery action.
func (m *Metrics) Recovery(action string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(action).Inc()
}

// HubPush records a hub write.
func (m *Metrics) HubPush(device, outcome string) {
	if m == nil {
		return
	}
	m.hubPushes.WithLabelValues(device, outcome).Inc()
}

// DevicePush records a device write.
func (m *Metrics) DevicePush(device, outcome string) {
	if m == nil {
		return
	}
	m.devicePushes.WithLabelValues(device, outcome).Inc()
}

// Refresh records a device refresh attempt.
func (m *Metrics) Refresh(device, outcome string, at time.Time) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(device, outcome).Inc()
	if outcome == OutcomeOK {
		m.lastRefresh.WithLabelValues(device).Set(float64(at.Unix()))
	}
}

// Event records a hub stream event outcome.
func (m *Metrics) Event(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

// StreamReconnect records a hub stream resubscription.
func (m *Metrics) StreamReconnect() {
	if m == nil {
		return
	}
	m.streamReconnects.Inc()
}

// RosterSize records the number of roster appliances.
func (m *Metrics) RosterSize(n int) {
	if m == nil {
		return
	}
	m.rosterSize.Set(float64(n))
}
