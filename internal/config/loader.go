package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (if path is not empty) over Defaults,
// then applies MATCHBOOK_* environment overrides. A .env file in the working
// directory is loaded first when present. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Address, "MATCHBOOK_SERVER_ADDRESS")
	setInt(&cfg.Server.Port, "MATCHBOOK_SERVER_PORT")
	setUint(&cfg.Server.Workers, "MATCHBOOK_SERVER_WORKERS")
	setDuration(&cfg.Server.ConnTimeout, "MATCHBOOK_SERVER_CONN_TIMEOUT")

	setStr(&cfg.Book.Symbol, "MATCHBOOK_BOOK_SYMBOL")
	setInt(&cfg.Book.QueueSize, "MATCHBOOK_BOOK_QUEUE_SIZE")

	setBool(&cfg.Kafka.Enabled, "MATCHBOOK_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "MATCHBOOK_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "MATCHBOOK_KAFKA_TOPIC")
	setDuration(&cfg.Kafka.WriteTimeout, "MATCHBOOK_KAFKA_WRITE_TIMEOUT")

	setBool(&cfg.Metrics.Enabled, "MATCHBOOK_METRICS_ENABLED")
	setStr(&cfg.Metrics.Address, "MATCHBOOK_METRICS_ADDRESS")

	setStr(&cfg.LogLevel, "MATCHBOOK_LOG_LEVEL")
	setStr(&cfg.LogFormat, "MATCHBOOK_LOG_FORMAT")
}

// Each helper only mutates the target when the variable is set, non-empty
// and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint(dst *uint, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 0); err == nil {
			*dst = uint(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
