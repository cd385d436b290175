package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "channel", cfg.Transport)
	assert.Equal(t, DefaultEventsTopic, cfg.EventsTopic)
	assert.Equal(t, DefaultDeadLetterTopic, cfg.DeadLetterTopic)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultBatchTimeout, cfg.BatchTimeout)
	assert.Equal(t, DefaultInvalidRatio, cfg.InvalidRatio)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_EVENTS_TOPIC", "my-events")
	t.Setenv("PIPELINE_BATCH_SIZE", "25")
	t.Setenv("PIPELINE_BATCH_TIMEOUT", "5s")
	t.Setenv("PIPELINE_INVALID_RATIO", "0.2")
	t.Setenv("PIPELINE_METRICS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "my-events", cfg.EventsTopic)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, 0.2, cfg.InvalidRatio)
	assert.True(t, cfg.MetricsEnabled)
}

func TestLoadKafkaBrokersList(t *testing.T) {
	t.Setenv("PIPELINE_TRANSPORT", "kafka")
	t.Setenv("PIPELINE_KAFKA_BROKERS", "broker-1:9092, broker-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"batch size not a number", "PIPELINE_BATCH_SIZE", "lots"},
		{"timeout not a duration", "PIPELINE_BATCH_TIMEOUT", "soon"},
		{"ratio not a float", "PIPELINE_INVALID_RATIO", "some"},
		{"metrics flag not a bool", "PIPELINE_METRICS_ENABLED", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"kafka without brokers", func(c *Config) { c.Transport = "kafka" }, "brokers are required"},
		{"unknown transport", func(c *Config) { c.Transport = "smoke-signals" }, "unknown value"},
		{"empty events topic", func(c *Config) { c.EventsTopic = "" }, "events topic is required"},
		{"empty dead-letter topic", func(c *Config) { c.DeadLetterTopic = "" }, "dead-letter topic is required"},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, "batch size must be positive"},
		{"zero batch timeout", func(c *Config) { c.BatchTimeout = 0 }, "batch timeout must be positive"},
		{"zero event rate", func(c *Config) { c.EventRate = 0 }, "event rate must be positive"},
		{"ratio above one", func(c *Config) { c.InvalidRatio = 1.5 }, "invalid ratio"},
		{"negative port", func(c *Config) { c.MetricsPort = -1 }, "invalid port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.EventsTopic = ""
	cfg.BatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events topic is required")
	assert.Contains(t, err.Error(), "batch size must be positive")
}
