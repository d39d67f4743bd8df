package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.History.Size != 1000 {
		t.Errorf("History.Size: got %d, want 1000", cfg.History.Size)
	}
	if cfg.RefreshInterval != 2*time.Second {
		t.Errorf("RefreshInterval: got %s, want 2s", cfg.RefreshInterval)
	}
	if cfg.MQTT.BrokerURL() != "tcp://broker.hivemq.com:1883" {
		t.Errorf("BrokerURL: got %s", cfg.MQTT.BrokerURL())
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labmonitor.yaml")
	body := `
mqtt:
  broker: localhost
  port: 1884
  topics:
    data: lab/data
history:
  size: 50
refresh_interval: 500ms
timezone_offset: -3h
models:
  mq2: models/mq2.json
  mq7: /opt/models/mq7.json
record: true
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTT.Broker != "localhost" || cfg.MQTT.Port != 1884 {
		t.Errorf("broker: got %s:%d", cfg.MQTT.Broker, cfg.MQTT.Port)
	}
	if cfg.MQTT.Topics.Data != "lab/data" {
		t.Errorf("data topic: got %q", cfg.MQTT.Topics.Data)
	}
	if cfg.MQTT.Topics.PredMQ2 != "net4think/lab_monitor/pred_mq2" {
		t.Errorf("unset topic should keep default, got %q", cfg.MQTT.Topics.PredMQ2)
	}
	if cfg.History.Size != 50 || cfg.RefreshInterval != 500*time.Millisecond || cfg.TimezoneOffset != -3*time.Hour {
		t.Errorf("overlay: got size=%d refresh=%s tz=%s", cfg.History.Size, cfg.RefreshInterval, cfg.TimezoneOffset)
	}
	if cfg.Models.MQ2 != filepath.Join(dir, "models/mq2.json") {
		t.Errorf("relative model path: got %q", cfg.Models.MQ2)
	}
	if cfg.Models.MQ7 != "/opt/models/mq7.json" {
		t.Errorf("absolute model path: got %q", cfg.Models.MQ7)
	}
	if !cfg.Record {
		t.Error("record: want true")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.History.Size = 0
	cfg.RefreshInterval = 0
	cfg.MQTT.Topics.PredMQ7 = ""
	cfg.Log.Level = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"history.size", "refresh_interval", "mqtt.topics", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
