// Package config defines the runtime configuration of the matching server.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from an optional TOML file
// and are then overridden by MATCHBOOK_* environment variables.
type Config struct {
	Server    ServerConfig  `toml:"server"`
	Book      BookConfig    `toml:"book"`
	Kafka     KafkaConfig   `toml:"kafka"`
	Metrics   MetricsConfig `toml:"metrics"`
	LogLevel  string        `toml:"log_level"`
	LogFormat string        `toml:"log_format"`
}

// ServerConfig holds the TCP gateway parameters.
type ServerConfig struct {
	Address     string   `toml:"address"`
	Port        int      `toml:"port"`
	Workers     uint     `toml:"workers"`
	ConnTimeout Duration `toml:"conn_timeout"`
}

// BookConfig describes the instrument the engine matches.
type BookConfig struct {
	Symbol    string `toml:"symbol"`
	QueueSize int    `toml:"queue_size"`
}

// KafkaConfig controls the execution publisher.
type KafkaConfig struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// Duration wraps time.Duration so TOML strings like "30s" decode.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Address:     "0.0.0.0",
			Port:        9001,
			Workers:     10,
			ConnTimeout: Duration{time.Minute},
		},
		Book: BookConfig{
			Symbol:    "DEFAULT",
			QueueSize: 1024,
		},
		Kafka: KafkaConfig{
			Enabled:      false,
			Brokers:      []string{"localhost:9092"},
			Topic:        "matchbook.executions",
			WriteTimeout: Duration{5 * time.Second},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"console": true,
	"json":    true,
}

// Validate returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: trace, debug, info, warn, error)", c.LogLevel))
	}
	if !validLogFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: console, json)", c.LogFormat))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if c.Server.Workers == 0 {
		errs = append(errs, "server: workers must be positive")
	}
	if c.Server.ConnTimeout.Duration < 0 {
		errs = append(errs, "server: conn_timeout must not be negative")
	}

	if strings.TrimSpace(c.Book.Symbol) == "" {
		errs = append(errs, "book: symbol must not be empty")
	}
	if c.Book.QueueSize <= 0 {
		errs = append(errs, "book: queue_size must be positive")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty when enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics: address must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
