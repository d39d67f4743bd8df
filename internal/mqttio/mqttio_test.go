package mqttio

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/luki/labmonitor/internal/config"
	"github.com/luki/labmonitor/internal/inbox"
	"github.com/luki/labmonitor/internal/metrics"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReceiverQueuesDecodedPayloads(t *testing.T) {
	in := inbox.New()
	m := metrics.New()
	r := NewReceiver(in, quietLogger(), m)

	r.OnMessage(nil, fakeMessage{topic: "lab/data", payload: []byte(`{"temperature": 25.0, "mq2_ppm": 5}`)})
	r.Deliver("lab/data", []byte(`not json`))
	r.Deliver("lab/data", []byte(`[1, 2]`))
	r.Deliver("lab/other", []byte(`{}`))

	st := in.Stats()
	if st.Pushed != 2 || st.Rejected != 2 || st.Pending != 2 {
		t.Errorf("inbox stats: got %+v", st)
	}

	msg, ok := in.Pop()
	if !ok || msg.Topic != "lab/data" {
		t.Fatalf("first message: got %+v (ok=%v)", msg, ok)
	}
	if msg.Payload["temperature"] != 25.0 {
		t.Errorf("payload temperature: got %v", msg.Payload["temperature"])
	}

	if got := testutil.ToFloat64(m.DecodeErrors); got != 2 {
		t.Errorf("decode errors metric: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesReceived); got != 2 {
		t.Errorf("received metric: got %v, want 2", got)
	}
}

func TestClientID(t *testing.T) {
	re := regexp.MustCompile(`^labmonitor_[0-9a-f]{8}$`)
	a, b := ClientID("labmonitor"), ClientID("labmonitor")
	if !re.MatchString(a) {
		t.Errorf("ClientID: got %q", a)
	}
	if a == b {
		t.Errorf("ClientID should be unique, got %q twice", a)
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	cfg := config.Default().MQTT
	c := NewClient(cfg, NewReceiver(inbox.New(), quietLogger(), nil), quietLogger(), nil)

	err := c.Publish(cfg.Topics.PredMQ2, []byte(`{"label":"clean","confidence":99}`))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish: got %v, want ErrNotConnected", err)
	}
	if st := c.Stats(); st.Connected || st.Errors != 1 {
		t.Errorf("Stats: got %+v", st)
	}
	c.Disconnect()
}

// slowBroker accepts one connection and answers CONNECT only after delay.
func slowBroker(t *testing.T, delay time.Duration) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		time.Sleep(delay)
		conn.Write([]byte{0x20, 0x02, 0x00, 0x00}) // CONNACK, accepted
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestConnectTimeoutAbandonsAttempt(t *testing.T) {
	cfg := config.Default().MQTT
	cfg.Broker, cfg.Port = slowBroker(t, 400*time.Millisecond)
	cfg.ConnectTimeout = 100 * time.Millisecond

	in := inbox.New()
	c := NewClient(cfg, NewReceiver(in, quietLogger(), nil), quietLogger(), nil)
	defer c.Disconnect()

	err := c.Connect()
	if err == nil {
		t.Fatal("Connect: expected timeout error")
	}
	t.Logf("Connect: %v", err)

	time.Sleep(time.Second)
	if c.IsConnected() || c.client.IsConnected() {
		t.Fatalf("client came up after Connect reported failure (broker %s)", net.JoinHostPort(cfg.Broker, strconv.Itoa(cfg.Port)))
	}
	if st := c.Stats(); st.Connected {
		t.Errorf("Stats: got %+v", st)
	}
}
