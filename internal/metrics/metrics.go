// Package metrics exposes the monitor's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups every instrument the monitor updates.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesReceived prometheus.Counter
	DecodeErrors     prometheus.Counter
	IgnoredMessages  *prometheus.CounterVec
	Observations     prometheus.Counter
	Predictions      *prometheus.CounterVec
	PublishErrors    *prometheus.CounterVec
	HistoryLength    prometheus.Gauge
	InboxDepth       prometheus.Gauge
	MQTTConnected    prometheus.Gauge
}

// New builds the instruments on a fresh registry, alongside the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmonitor_messages_received_total",
			Help: "MQTT messages decoded and queued for the refresh loop.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmonitor_decode_errors_total",
			Help: "MQTT payloads dropped because they were not a JSON object.",
		}),
		IgnoredMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labmonitor_ignored_messages_total",
			Help: "Queued messages on a topic other than the data topic.",
		}, []string{"topic"}),
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labmonitor_observations_total",
			Help: "Data messages processed into observations.",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labmonitor_predictions_total",
			Help: "Classification results by sensor and label.",
		}, []string{"sensor", "label"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labmonitor_publish_errors_total",
			Help: "Classification results that could not be published.",
		}, []string{"topic"}),
		HistoryLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labmonitor_history_records",
			Help: "Records currently held in the history store.",
		}),
		InboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labmonitor_inbox_pending",
			Help: "Messages waiting in the inbox after the last drain.",
		}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labmonitor_mqtt_connected",
			Help: "1 when the MQTT client is connected to the broker.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesReceived,
		m.DecodeErrors,
		m.IgnoredMessages,
		m.Observations,
		m.Predictions,
		m.PublishErrors,
		m.HistoryLength,
		m.InboxDepth,
		m.MQTTConnected,
	)
	return m
}

// SetConnected records the broker connection state.
func (m *Metrics) SetConnected(ok bool) {
	if ok {
		m.MQTTConnected.Set(1)
		return
	}
	m.MQTTConnected.Set(0)
}
