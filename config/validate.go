package config

import (
	"fmt"
	"strings"

	"deliverynet/storage"
)

// MaxTokenPrecision bounds the cart price scale; 10^38 already exceeds the
// 128-bit amount range.
const MaxTokenPrecision = 38

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt, storage.BackendPebble:
	default:
		return fmt.Errorf("config: unsupported storage backend %q", c.StorageBackend)
	}
	if c.TokenPrecision > MaxTokenPrecision {
		return fmt.Errorf("config: token precision %d above %d", c.TokenPrecision, MaxTokenPrecision)
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: hmac secret required when enabled")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("ratelimit: requests per minute must not be negative")
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit: burst must be positive")
	}
	if c.Telemetry.Traces || c.Telemetry.Metrics {
		if strings.TrimSpace(c.Telemetry.Endpoint) == "" {
			return fmt.Errorf("telemetry: endpoint required when exporters are enabled")
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample ratio must be within [0,1]")
	}
	switch c.Indexer.Driver {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: dsn required for driver %q", c.Indexer.Driver)
		}
	default:
		return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
	}
	for _, broker := range c.Kafka.Brokers {
		if strings.TrimSpace(broker) == "" {
			return fmt.Errorf("kafka: empty broker address")
		}
	}
	return nil
}
