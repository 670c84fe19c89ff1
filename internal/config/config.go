package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/anchors.defaults.json"

// Defaults used by the Get* accessors when a field is omitted.
const (
	DefaultFusionWindowSize              = 5
	DefaultMaxInterpolationSeconds       = 3.0
	DefaultInterpolationMetersPerS       = 0.1
	DefaultPayloadPollInterval           = 100 * time.Millisecond
	DefaultPayloadTimeout                = 10 * time.Second
	DefaultMQTTTopicPrefix               = "anchors/telemetry"
	DefaultRedisKeyPrefix                = "anchors:payload:"
	maxConfigFileSize              int64 = 1 * 1024 * 1024
)

// AnchorConfig is the root configuration for the anchor pipeline.
// Pointer fields distinguish "unset" from zero so partial files are safe;
// the Get* methods supply defaults.
type AnchorConfig struct {
	// Pose smoothing
	FusionEnabled                *bool    `json:"fusion_enabled,omitempty"`
	FusionWindowSize             *int     `json:"fusion_window_size,omitempty"`
	InterpolationEnabled         *bool    `json:"interpolation_enabled,omitempty"`
	MaxInterpolationSeconds      *float64 `json:"max_interpolation_seconds,omitempty"`
	InterpolationMetersPerSecond *float64 `json:"interpolation_meters_per_second,omitempty"`

	// Telemetry
	TelemetryEnabled *bool   `json:"telemetry_enabled,omitempty"`
	EventDBPath      *string `json:"event_db_path,omitempty"`
	MQTTBroker       *string `json:"mqtt_broker,omitempty"` // e.g. "tcp://localhost:1883"
	MQTTClientID     *string `json:"mqtt_client_id,omitempty"`
	MQTTTopicPrefix  *string `json:"mqtt_topic_prefix,omitempty"`

	// Payload fetch
	PayloadPollInterval *string `json:"payload_poll_interval,omitempty"` // duration string like "100ms"
	PayloadTimeout      *string `json:"payload_timeout,omitempty"`       // duration string like "10s"
	RedisAddr           *string `json:"redis_addr,omitempty"`
	RedisDB             *int    `json:"redis_db,omitempty"`
	RedisKeyPrefix      *string `json:"redis_key_prefix,omitempty"`
}

// EmptyConfig returns an AnchorConfig with every field unset.
func EmptyConfig() *AnchorConfig {
	return &AnchorConfig{}
}

// LoadConfig loads an AnchorConfig from a JSON file and validates it.
func LoadConfig(path string) (*AnchorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *AnchorConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks that set values are usable.
func (c *AnchorConfig) Validate() error {
	if c.FusionWindowSize != nil && *c.FusionWindowSize < 1 {
		return fmt.Errorf("fusion_window_size must be at least 1, got %d", *c.FusionWindowSize)
	}
	if c.MaxInterpolationSeconds != nil && *c.MaxInterpolationSeconds <= 0 {
		return fmt.Errorf("max_interpolation_seconds must be positive, got %f", *c.MaxInterpolationSeconds)
	}
	if c.InterpolationMetersPerSecond != nil && *c.InterpolationMetersPerSecond <= 0 {
		return fmt.Errorf("interpolation_meters_per_second must be positive, got %f", *c.InterpolationMetersPerSecond)
	}
	for name, v := range map[string]*string{
		"payload_poll_interval": c.PayloadPollInterval,
		"payload_timeout":       c.PayloadTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.RedisDB != nil && *c.RedisDB < 0 {
		return fmt.Errorf("redis_db must be non-negative, got %d", *c.RedisDB)
	}
	return nil
}

// GetFusionEnabled returns fusion_enabled or the default (true).
func (c *AnchorConfig) GetFusionEnabled() bool {
	if c.FusionEnabled == nil {
		return true
	}
	return *c.FusionEnabled
}

// GetFusionWindowSize returns fusion_window_size or the default.
func (c *AnchorConfig) GetFusionWindowSize() int {
	if c.FusionWindowSize == nil {
		return DefaultFusionWindowSize
	}
	return *c.FusionWindowSize
}

// GetInterpolationEnabled returns interpolation_enabled or the default (false).
func (c *AnchorConfig) GetInterpolationEnabled() bool {
	if c.InterpolationEnabled == nil {
		return false
	}
	return *c.InterpolationEnabled
}

// GetMaxInterpolationSeconds returns max_interpolation_seconds or the default.
func (c *AnchorConfig) GetMaxInterpolationSeconds() float64 {
	if c.MaxInterpolationSeconds == nil {
		return DefaultMaxInterpolationSeconds
	}
	return *c.MaxInterpolationSeconds
}

// GetInterpolationMetersPerSecond returns interpolation_meters_per_second or the default.
func (c *AnchorConfig) GetInterpolationMetersPerSecond() float64 {
	if c.InterpolationMetersPerSecond == nil {
		return DefaultInterpolationMetersPerS
	}
	return *c.InterpolationMetersPerSecond
}

// GetTelemetryEnabled returns telemetry_enabled or the default (true).
func (c *AnchorConfig) GetTelemetryEnabled() bool {
	if c.TelemetryEnabled == nil {
		return true
	}
	return *c.TelemetryEnabled
}

// GetEventDBPath returns event_db_path; empty disables the event store.
func (c *AnchorConfig) GetEventDBPath() string {
	if c.EventDBPath == nil {
		return ""
	}
	return *c.EventDBPath
}

// GetMQTTBroker returns mqtt_broker; empty disables MQTT publishing.
func (c *AnchorConfig) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTClientID returns mqtt_client_id or an empty string (auto-generated).
func (c *AnchorConfig) GetMQTTClientID() string {
	if c.MQTTClientID == nil {
		return ""
	}
	return *c.MQTTClientID
}

// GetMQTTTopicPrefix returns mqtt_topic_prefix or the default.
func (c *AnchorConfig) GetMQTTTopicPrefix() string {
	if c.MQTTTopicPrefix == nil || *c.MQTTTopicPrefix == "" {
		return DefaultMQTTTopicPrefix
	}
	return *c.MQTTTopicPrefix
}

// GetPayloadPollInterval parses payload_poll_interval.
func (c *AnchorConfig) GetPayloadPollInterval() time.Duration {
	return parseDurationOr(c.PayloadPollInterval, DefaultPayloadPollInterval)
}

// GetPayloadTimeout parses payload_timeout.
func (c *AnchorConfig) GetPayloadTimeout() time.Duration {
	return parseDurationOr(c.PayloadTimeout, DefaultPayloadTimeout)
}

// GetRedisAddr returns redis_addr; empty disables the Redis payload store.
func (c *AnchorConfig) GetRedisAddr() string {
	if c.RedisAddr == nil {
		return ""
	}
	return *c.RedisAddr
}

// GetRedisDB returns redis_db or 0.
func (c *AnchorConfig) GetRedisDB() int {
	if c.RedisDB == nil {
		return 0
	}
	return *c.RedisDB
}

// GetRedisKeyPrefix returns redis_key_prefix or the default.
func (c *AnchorConfig) GetRedisKeyPrefix() string {
	if c.RedisKeyPrefix == nil || *c.RedisKeyPrefix == "" {
		return DefaultRedisKeyPrefix
	}
	return *c.RedisKeyPrefix
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
