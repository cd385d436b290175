// Package config holds the runtime knobs for the pipeline. Values come from
// the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults mirroring the reference deployment.
const (
	DefaultEventsTopic     = "events-topic"
	DefaultDeadLetterTopic = "dead-letter-topic"
	DefaultBatchSize       = 100
	DefaultBatchTimeout    = 30 * time.Second
	DefaultEventRate       = 10
	DefaultRunDuration     = 60 * time.Second
	DefaultInvalidRatio    = 0.05
	DefaultHealthInterval  = 30 * time.Second
	DefaultMetricsPort     = 9091
)

// Config groups every runtime knob of the pipeline.
type Config struct {
	// Transport selects the bus backend: "channel" or "kafka".
	Transport          string
	KafkaBrokers       []string
	KafkaConsumerGroup string

	EventsTopic     string
	DeadLetterTopic string

	BatchSize    int
	BatchTimeout time.Duration

	// EventRate is the producer target in events per second.
	EventRate int
	// RunDuration bounds one pipeline run.
	RunDuration time.Duration
	// InvalidRatio is the fraction of deliberately invalid synthetic events.
	InvalidRatio float64

	OutputDir     string
	DeadLetterDir string
	SchemaFile    string

	HealthInterval time.Duration

	MetricsEnabled bool
	MetricsPort    int
}

// Default returns a Config with every knob at its reference value.
func Default() Config {
	return Config{
		Transport:          "channel",
		KafkaConsumerGroup: "streaming-pipeline-group",
		EventsTopic:        DefaultEventsTopic,
		DeadLetterTopic:    DefaultDeadLetterTopic,
		BatchSize:          DefaultBatchSize,
		BatchTimeout:       DefaultBatchTimeout,
		EventRate:          DefaultEventRate,
		RunDuration:        DefaultRunDuration,
		InvalidRatio:       DefaultInvalidRatio,
		OutputDir:          filepath.Join("data", "output"),
		DeadLetterDir:      filepath.Join("data", "output", "dead_letters"),
		SchemaFile:         filepath.Join("schema", "event_schema.yaml"),
		HealthInterval:     DefaultHealthInterval,
		MetricsPort:        DefaultMetricsPort,
	}
}

// Load builds the configuration from the environment. A .env file in the
// working directory is honored when present.
func Load() (Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := Default()

	if v := os.Getenv("PIPELINE_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("PIPELINE_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("PIPELINE_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.KafkaConsumerGroup = v
	}
	if v := os.Getenv("PIPELINE_EVENTS_TOPIC"); v != "" {
		cfg.EventsTopic = v
	}
	if v := os.Getenv("PIPELINE_DEAD_LETTER_TOPIC"); v != "" {
		cfg.DeadLetterTopic = v
	}
	if v := os.Getenv("PIPELINE_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
		cfg.DeadLetterDir = filepath.Join(v, "dead_letters")
	}
	if v := os.Getenv("PIPELINE_DEAD_LETTER_DIR"); v != "" {
		cfg.DeadLetterDir = v
	}
	if v := os.Getenv("PIPELINE_SCHEMA_FILE"); v != "" {
		cfg.SchemaFile = v
	}

	var err error
	if cfg.BatchSize, err = intEnv("PIPELINE_BATCH_SIZE", cfg.BatchSize); err != nil {
		return cfg, err
	}
	if cfg.EventRate, err = intEnv("PIPELINE_EVENT_RATE", cfg.EventRate); err != nil {
		return cfg, err
	}
	if cfg.MetricsPort, err = intEnv("PIPELINE_METRICS_PORT", cfg.MetricsPort); err != nil {
		return cfg, err
	}
	if cfg.BatchTimeout, err = durationEnv("PIPELINE_BATCH_TIMEOUT", cfg.BatchTimeout); err != nil {
		return cfg, err
	}
	if cfg.RunDuration, err = durationEnv("PIPELINE_RUN_DURATION", cfg.RunDuration); err != nil {
		return cfg, err
	}
	if cfg.HealthInterval, err = durationEnv("PIPELINE_HEALTH_INTERVAL", cfg.HealthInterval); err != nil {
		return cfg, err
	}
	if cfg.InvalidRatio, err = floatEnv("PIPELINE_INVALID_RATIO", cfg.InvalidRatio); err != nil {
		return cfg, err
	}
	if v := os.Getenv("PIPELINE_METRICS_ENABLED"); v != "" {
		cfg.MetricsEnabled, err = strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("config: PIPELINE_METRICS_ENABLED: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for the selected transport and the value
// ranges every component assumes.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Transport) {
	case "channel", "":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka: brokers are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport: unknown value %q", c.Transport))
	}

	if c.EventsTopic == "" {
		errs = append(errs, errors.New("events topic is required"))
	}
	if c.DeadLetterTopic == "" {
		errs = append(errs, errors.New("dead-letter topic is required"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.BatchTimeout <= 0 {
		errs = append(errs, errors.New("batch timeout must be positive"))
	}
	if c.EventRate <= 0 {
		errs = append(errs, errors.New("event rate must be positive"))
	}
	if c.InvalidRatio < 0 || c.InvalidRatio > 1 {
		errs = append(errs, errors.New("invalid ratio must be within [0, 1]"))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}
