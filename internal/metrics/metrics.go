// Package metrics exposes engine and transport counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediawatch/backend/internal/notify"
)

const namespace = "mediawatch"

// Metrics owns a private registry. It implements engine.Observer.
type Metrics struct {
	registry *prometheus.Registry

	EventsApplied        *prometheus.CounterVec
	Extractions          *prometheus.CounterVec
	Anomalies            *prometheus.CounterVec
	NotificationsDropped *prometheus.CounterVec
	SessionsTracked      prometheus.Gauge
	ArtSessionsTracked   prometheus.Gauge
	WSClients            prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_applied_total",
				Help:      "Provider and internal events applied by the engine.",
			},
			[]string{"event"},
		),
		Extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Art color extractions by result (ok, failed, discarded).",
			},
			[]string{"result"},
		),
		Anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_total",
				Help:      "Recoverable provider anomalies the engine reconciled.",
			},
			[]string{"kind"},
		),
		NotificationsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Notifications dropped because a subscriber buffer was full.",
			},
			[]string{"kind"},
		),
		SessionsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_tracked",
			Help:      "Sessions in the session store.",
		}),
		ArtSessionsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "art_sessions_tracked",
			Help:      "Sessions currently exposing thumbnail art.",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients.",
		}),
	}

	m.registry.MustRegister(
		m.EventsApplied,
		m.Extractions,
		m.Anomalies,
		m.NotificationsDropped,
		m.SessionsTracked,
		m.ArtSessionsTracked,
		m.WSClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EventApplied(event string) {
	m.EventsApplied.WithLabelValues(event).Inc()
}

func (m *Metrics) ExtractionFinished(result string) {
	m.Extractions.WithLabelValues(result).Inc()
}

func (m *Metrics) Anomaly(kind string) {
	m.Anomalies.WithLabelValues(kind).Inc()
}

func (m *Metrics) Tracked(sessions, artSessions int) {
	m.SessionsTracked.Set(float64(sessions))
	m.ArtSessionsTracked.Set(float64(artSessions))
}

// NotificationDropped matches notify.Notifier's drop hook.
func (m *Metrics) NotificationDropped(kind notify.Kind) {
	m.NotificationsDropped.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ClientConnected()    { m.WSClients.Inc() }
func (m *Metrics) ClientDisconnected() { m.WSClients.Dec() }
