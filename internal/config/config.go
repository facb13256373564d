package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Upstream fetching. Empty URLs select the public JHU CSSE files.
	ConfirmedURL string        `env:"CONFIRMED_URL"`
	DeathsURL    string        `env:"DEATHS_URL"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`

	// RecoveryLag is the assumed days between confirmation and recovery.
	RecoveryLag int `env:"RECOVERY_LAG" envDefault:"14"`

	// Snapshot persistence and the refresh loop. An empty SNAPSHOT_PATH
	// keeps the snapshot in a throwaway temp file.
	SnapshotPath    string        `env:"SNAPSHOT_PATH" envDefault:"coronadata.csv"`
	SnapshotMaxAge  time.Duration `env:"SNAPSHOT_MAX_AGE" envDefault:"1m"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"1m"`

	// Kafka summary publishing, enabled by setting brokers.
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaSummaryTopic string   `env:"KAFKA_SUMMARY_TOPIC" envDefault:"corona-day-summaries"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	brokers := make([]string, 0, len(cfg.KafkaBrokers))
	for _, b := range cfg.KafkaBrokers {
		if s := strings.TrimSpace(b); s != "" {
			brokers = append(brokers, s)
		}
	}
	cfg.KafkaBrokers = brokers

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for values the service cannot run with.
func (c *Config) Validate() error {
	if c.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if c.RecoveryLag <= 0 {
		return errors.New("RECOVERY_LAG must be positive")
	}
	if c.SnapshotMaxAge <= 0 {
		return errors.New("SNAPSHOT_MAX_AGE must be positive")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("REFRESH_INTERVAL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.KafkaEnabled() && c.KafkaSummaryTopic == "" {
		return errors.New("KAFKA_SUMMARY_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// KafkaEnabled reports whether summary publishing is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
