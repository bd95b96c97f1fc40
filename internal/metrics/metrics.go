// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters the gateway exports. Each instance owns its
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	AlertsReceived    *prometheus.CounterVec // by severity
	AlertsAccepted    prometheus.Counter
	AlertsDropped     *prometheus.CounterVec // by reason
	ReadingsIngested  prometheus.Counter
	PredictionsServed *prometheus.CounterVec // by label
	CSVAnalyses       *prometheus.CounterVec // by outcome
	WebsocketClients  *prometheus.GaugeVec   // by namespace
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AlertsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheild_alerts_received_total",
			Help: "Alert events received from the alerts channel.",
		}, []string{"severity"}),
		AlertsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheild_alerts_accepted_total",
			Help: "Alert events that entered the live alert history.",
		}),
		AlertsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheild_alerts_dropped_total",
			Help: "Alert events discarded before reaching the history.",
		}, []string{"reason"}),
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheild_readings_ingested_total",
			Help: "Sensor readings accepted on the data endpoint.",
		}),
		PredictionsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheild_predictions_total",
			Help: "Predictions produced by the local scorer.",
		}, []string{"label"}),
		CSVAnalyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheild_csv_analyses_total",
			Help: "CSV uploads analyzed, by outcome.",
		}, []string{"outcome"}),
		WebsocketClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sheild_websocket_clients",
			Help: "Connected websocket clients.",
		}, []string{"namespace"}),
	}
	m.registry.MustRegister(
		m.AlertsReceived,
		m.AlertsAccepted,
		m.AlertsDropped,
		m.ReadingsIngested,
		m.PredictionsServed,
		m.CSVAnalyses,
		m.WebsocketClients,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
