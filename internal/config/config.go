// Package config loads the monitor's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete monitor configuration.
type Config struct {
	MQTT            MQTTConfig    `yaml:"mqtt"`
	Models          ModelsConfig  `yaml:"models"`
	History         HistoryConfig `yaml:"history"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	TimezoneOffset  time.Duration `yaml:"timezone_offset"` // fixed offset from UTC for timestamps
	DataDir         string        `yaml:"data_dir"`        // daily recordings and CSV exports
	Record          bool          `yaml:"record"`          // append every record to a daily CSV
	HTTP            HTTPConfig    `yaml:"http"`
	Log             LogConfig     `yaml:"log"`
}

// MQTTConfig contains broker settings.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	Port           int           `yaml:"port"`
	ClientPrefix   string        `yaml:"client_prefix"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	Topics         MQTTTopics    `yaml:"topics"`
}

// MQTTTopics names the inbound data topic and one outbound topic per gas
// sensor.
type MQTTTopics struct {
	Data      string `yaml:"data"`
	PredMQ135 string `yaml:"pred_mq135"`
	PredMQ2   string `yaml:"pred_mq2"`
	PredMQ7   string `yaml:"pred_mq7"`
}

// ModelsConfig locates the model artifacts.
type ModelsConfig struct {
	MQ135 string `yaml:"mq135"`
	MQ2   string `yaml:"mq2"`
	MQ7   string `yaml:"mq7"`
}

// HistoryConfig sizes the in-memory history.
type HistoryConfig struct {
	Size int `yaml:"size"`
}

// HTTPConfig configures the HTTP API; an empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the log file and level.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MQTT: MQTTConfig{
			Broker:         "broker.hivemq.com",
			Port:           1883,
			ClientPrefix:   "labmonitor",
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 5 * time.Second,
			PublishTimeout: 2 * time.Second,
			Topics: MQTTTopics{
				Data:      "net4think/lab_monitor/data",
				PredMQ135: "net4think/lab_monitor/pred_mq135",
				PredMQ2:   "net4think/lab_monitor/pred_mq2",
				PredMQ7:   "net4think/lab_monitor/pred_mq7",
			},
		},
		Models: ModelsConfig{
			MQ135: "air_quality_rf_model.json",
			MQ2:   "model_mq2.json",
			MQ7:   "model_mq7.json",
		},
		History:         HistoryConfig{Size: 1000},
		RefreshInterval: 2 * time.Second,
		TimezoneOffset:  7 * time.Hour,
		DataDir:         defaultDataDir(),
		HTTP:            HTTPConfig{Addr: ":8080"},
		Log:             LogConfig{File: "labmonitor.log", Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".labmonitor-data"
	}
	return filepath.Join(home, ".labmonitor-data")
}

// Load overlays the YAML file at path onto Default. A missing file is not an
// error when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Model paths are relative to the config file.
	base := filepath.Dir(path)
	for _, p := range []*string{&cfg.Models.MQ135, &cfg.Models.MQ2, &cfg.Models.MQ7} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the monitor cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d out of range", c.MQTT.QoS))
	}
	if c.MQTT.ConnectTimeout <= 0 || c.MQTT.PublishTimeout <= 0 {
		errs = append(errs, errors.New("mqtt.connect_timeout and mqtt.publish_timeout must be positive"))
	}
	t := c.MQTT.Topics
	if t.Data == "" || t.PredMQ135 == "" || t.PredMQ2 == "" || t.PredMQ7 == "" {
		errs = append(errs, errors.New("mqtt.topics: data and all prediction topics are required"))
	}
	if c.History.Size <= 0 {
		errs = append(errs, fmt.Errorf("history.size must be positive, got %d", c.History.Size))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh_interval must be positive, got %s", c.RefreshInterval))
	}
	if c.TimezoneOffset < -14*time.Hour || c.TimezoneOffset > 14*time.Hour {
		errs = append(errs, fmt.Errorf("timezone_offset %s out of range", c.TimezoneOffset))
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q unknown", c.Log.Level))
	}
	return errors.Join(errs...)
}

// BrokerURL returns the paho broker address.
func (c MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}
