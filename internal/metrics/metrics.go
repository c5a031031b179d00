// Package metrics exposes Prometheus collectors for the realtime core.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Metrics groups the collectors the dispatcher, router and hub update.
type Metrics struct {
	registry *prometheus.Registry

	eventsReceived  *prometheus.CounterVec
	eventErrors     *prometheus.CounterVec
	framesDelivered *prometheus.CounterVec
	framesDropped   prometheus.Counter
	rateLimited     prometheus.Counter
	onlineUsers     prometheus.Gauge
	connections     prometheus.Gauge
	authRejected    *prometheus.CounterVec
}

// New registers every collector on a fresh registry, alongside the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound events by name.",
		}, []string{"event"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Inbound events that failed, by name and error code.",
		}, []string{"event", "code"}),
		framesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Outbound frames handed to connections, by event.",
		}, []string{"event"}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped because a connection's send queue was full.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rate_limited_total",
			Help:      "Inbound events rejected by the per-connection rate limiter.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one live connection.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live authenticated connections.",
		}),
		authRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejected_total",
			Help:      "Rejected connection attempts by error code.",
		}, []string{"code"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.eventsReceived,
		m.eventErrors,
		m.framesDelivered,
		m.framesDropped,
		m.rateLimited,
		m.onlineUsers,
		m.connections,
		m.authRejected,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) EventFailed(event, code string) {
	if m == nil {
		return
	}
	m.eventErrors.WithLabelValues(event, code).Inc()
}

func (m *Metrics) FramesDelivered(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesDelivered.WithLabelValues(event).Add(float64(n))
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) AuthRejected(code string) {
	if m == nil {
		return
	}
	m.authRejected.WithLabelValues(code).Inc()
}

// SetPresence records the current online user and connection counts.
func (m *Metrics) SetPresence(onlineUsers, connections int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(onlineUsers))
	m.connections.Set(float64(connections))
}
