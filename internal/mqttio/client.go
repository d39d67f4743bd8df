package mqttio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/luki/labmonitor/internal/config"
	"github.com/luki/labmonitor/internal/metrics"
)

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// Client owns the paho connection. Reconnection is left to paho's
// auto-reconnect; the data topic is re-subscribed on every connect.
type Client struct {
	cfg      config.MQTTConfig
	clientID string
	client   mqtt.Client
	receiver *Receiver
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// Stats contains publish statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// ClientID returns a unique client identifier such as "labmonitor_1a2b3c4d".
func ClientID(prefix string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%x", prefix, id[:4])
}

// NewClient prepares a client; call Connect to dial the broker. m may be nil.
func NewClient(cfg config.MQTTConfig, r *Receiver, log *slog.Logger, m *metrics.Metrics) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		cfg:       cfg,
		clientID:  ClientID(cfg.ClientPrefix),
		receiver:  r,
		log:       log,
		metrics:   m,
		published: make(map[string]uint64),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(c.clientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = c.onConnectionLost

	c.client = mqtt.NewClient(opts)
	return c
}

// ID returns the MQTT client ID.
func (c *Client) ID() string { return c.clientID }

// Connect dials the broker once, waiting at most the configured connect
// timeout.
func (c *Client) Connect() error {
	c.log.Info("connecting to mqtt broker", "broker", c.cfg.BrokerURL(), "client_id", c.clientID)

	token := c.client.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		// abandon the attempt so a late CONNACK cannot bring the client up
		c.client.Disconnect(0)
		c.setConnected(false)
		return fmt.Errorf("mqtt connect to %s: timeout after %s", c.cfg.BrokerURL(), c.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", c.cfg.BrokerURL(), err)
	}
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.setConnected(true)
	c.log.Info("mqtt connection established", "broker", c.cfg.BrokerURL(), "client_id", c.clientID)

	topic := c.cfg.Topics.Data
	token := client.Subscribe(topic, c.cfg.QoS, c.receiver.OnMessage)
	go func() {
		if !token.WaitTimeout(c.cfg.ConnectTimeout) {
			c.log.Error("mqtt subscribe timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			c.log.Error("mqtt subscribe failed", "topic", topic, "error", err)
			return
		}
		c.log.Info("subscribed", "topic", topic, "qos", c.cfg.QoS)
	}()
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.setConnected(false)
	c.log.Warn("mqtt connection lost, waiting for automatic reconnection", "error", err, "broker", c.cfg.BrokerURL())
}

func (c *Client) setConnected(ok bool) {
	c.mu.Lock()
	c.connected = ok
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.SetConnected(ok)
	}
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Publish sends payload to topic, waiting at most the publish timeout.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.IsConnected() {
		c.countError()
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	if !token.WaitTimeout(c.cfg.PublishTimeout) {
		c.countError()
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		c.countError()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	c.mu.Lock()
	c.published[topic]++
	c.mu.Unlock()

	c.log.Debug("published", "topic", topic, "size", len(payload))
	return nil
}

func (c *Client) countError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Stats returns publish statistics.
func (c *Client) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	published := make(map[string]uint64, len(c.published))
	for k, v := range c.published {
		published[k] = v
	}
	return Stats{Connected: c.connected, Published: published, Errors: c.errors}
}

// Disconnect closes the connection with a 250ms grace period.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
		c.log.Info("mqtt disconnected")
	}
	c.setConnected(false)
}
