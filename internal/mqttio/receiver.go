// Package mqttio connects the monitor to the MQTT broker: a Receiver that
// decodes inbound telemetry into the inbox, and a Client that subscribes it
// and publishes classification results.
package mqttio

import (
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/luki/labmonitor/internal/inbox"
	"github.com/luki/labmonitor/internal/metrics"
	"github.com/luki/labmonitor/internal/sensor"
)

// Receiver turns raw MQTT messages into inbox entries. It runs on the paho
// client's goroutines and touches nothing but the inbox.
type Receiver struct {
	inbox   *inbox.Inbox
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewReceiver creates a receiver feeding in. m may be nil.
func NewReceiver(in *inbox.Inbox, log *slog.Logger, m *metrics.Metrics) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	return &Receiver{inbox: in, log: log, metrics: m}
}

// Deliver decodes one payload and queues it. Payloads that are not a JSON
// object are logged and dropped.
func (r *Receiver) Deliver(topic string, payload []byte) {
	decoded, err := sensor.DecodePayload(payload)
	if err != nil {
		r.inbox.Reject()
		if r.metrics != nil {
			r.metrics.DecodeErrors.Inc()
		}
		r.log.Warn("dropping undecodable payload", "topic", topic, "size", len(payload), "error", err)
		return
	}

	r.inbox.Push(inbox.Message{Topic: topic, Payload: decoded})
	if r.metrics != nil {
		r.metrics.MessagesReceived.Inc()
	}
}

// OnMessage is the paho message handler.
func (r *Receiver) OnMessage(_ mqtt.Client, msg mqtt.Message) {
	r.Deliver(msg.Topic(), msg.Payload())
}
