package config

import (
	"fmt"
	"strings"
	"time"

	"notiq/pkg/logx"
)

type Config struct {
	Broker   BrokerConfig   `json:"broker"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
	Upload   UploadConfig   `json:"upload,omitempty"`
	Delivery DeliveryConfig `json:"delivery,omitempty"`
}

// BrokerConfig points at the RabbitMQ broker. The URL carries
// credentials and must never be logged whole.
type BrokerConfig struct {
	URL         string `json:"url" env:"NOTIQ_BROKER_URL"`
	QueuePrefix string `json:"queue_prefix,omitempty" env:"NOTIQ_QUEUE_PREFIX"`
	// Confirms enables publisher confirms; publishes then block until
	// the broker acks.
	Confirms bool `json:"confirms,omitempty" env:"NOTIQ_BROKER_CONFIRMS"`
}

type LoggingConfig struct {
	Level   string      `json:"level" env:"NOTIQ_LOG_LEVEL"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty" env:"NOTIQ_METRICS_ADDR"` // default: "127.0.0.1:9090"
}

// UploadConfig points at the media upload service. Optional: without an
// endpoint, connectors that need URL images reject base64 payloads.
type UploadConfig struct {
	Endpoint string `json:"endpoint,omitempty" env:"NOTIQ_UPLOAD_ENDPOINT"`
	Token    string `json:"token,omitempty" env:"NOTIQ_UPLOAD_TOKEN"` // bearer token (do not log)
	// Timeout is a Go duration string (e.g. "10s", "1m").
	Timeout string `json:"timeout,omitempty"`
}

// DeliveryConfig controls the delivery consumer.
type DeliveryConfig struct {
	// Queue is the message type consumed for notification jobs.
	Queue string `json:"queue,omitempty"` // default: "delivery"
}

const (
	defaultMetricsAddr   = "127.0.0.1:9090"
	defaultDeliveryQueue = "delivery"
	defaultQueuePrefix   = "notiq"
)

// Validate checks required fields and duration syntax. Called before a
// config is committed, including on hot reload.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Broker.URL) == "" {
		return fmt.Errorf("broker.url required")
	}
	if !strings.HasPrefix(c.Broker.URL, "amqp://") && !strings.HasPrefix(c.Broker.URL, "amqps://") {
		return fmt.Errorf("broker.url must be an amqp:// or amqps:// URL")
	}
	if _, err := ParseDurationField("upload.timeout", c.Upload.Timeout); err != nil {
		return err
	}
	return nil
}

// MetricsAddr returns the listen address with the default applied.
func (c *Config) MetricsAddr() string {
	if a := strings.TrimSpace(c.Metrics.Addr); a != "" {
		return a
	}
	return defaultMetricsAddr
}

// DeliveryQueue returns the delivery message type with the default applied.
func (c *Config) DeliveryQueue() string {
	if q := strings.TrimSpace(c.Delivery.Queue); q != "" {
		return q
	}
	return defaultDeliveryQueue
}

// QueuePrefix returns the broker naming prefix with the default applied.
func (c *Config) QueuePrefix() string {
	if p := strings.TrimSpace(c.Broker.QueuePrefix); p != "" {
		return p
	}
	return defaultQueuePrefix
}

// UploadTimeout returns the parsed upload timeout, zero when unset.
func (c *Config) UploadTimeout() time.Duration {
	d, err := ParseDurationField("upload.timeout", c.Upload.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Logx maps the logging section onto the logx service config.
func (c *Config) Logx() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}
