package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matchbook.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Server.ConnTimeout.Duration)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
log_format = "json"

[server]
port = 7000
conn_timeout = "30s"

[book]
symbol = "ACME"

[kafka]
enabled = true
brokers = ["kafka-1:9092", "kafka-2:9092"]
write_timeout = "2s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ConnTimeout.Duration)
	// Unset keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, uint(10), cfg.Server.Workers)
	assert.Equal(t, "ACME", cfg.Book.Symbol)
	assert.Equal(t, 1024, cfg.Book.QueueSize)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "matchbook.executions", cfg.Kafka.Topic)
	assert.Equal(t, 2*time.Second, cfg.Kafka.WriteTimeout.Duration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "[server]\nconn_timeout = \"soon\"\n"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MATCHBOOK_SERVER_PORT", "9100")
	t.Setenv("MATCHBOOK_SERVER_WORKERS", "3")
	t.Setenv("MATCHBOOK_SERVER_CONN_TIMEOUT", "5s")
	t.Setenv("MATCHBOOK_BOOK_SYMBOL", "XYZ")
	t.Setenv("MATCHBOOK_KAFKA_ENABLED", "true")
	t.Setenv("MATCHBOOK_KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("MATCHBOOK_METRICS_ENABLED", "false")
	t.Setenv("MATCHBOOK_LOG_LEVEL", "warn")
	// Unparseable values are ignored.
	t.Setenv("MATCHBOOK_BOOK_QUEUE_SIZE", "lots")

	cfg, err := Load(writeConfig(t, "[book]\nsymbol = \"ACME\"\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, uint(3), cfg.Server.Workers)
	assert.Equal(t, 5*time.Second, cfg.Server.ConnTimeout.Duration)
	assert.Equal(t, "XYZ", cfg.Book.Symbol)
	assert.Equal(t, 1024, cfg.Book.QueueSize)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"workers", func(c *Config) { c.Server.Workers = 0 }, "server: workers"},
		{"timeout", func(c *Config) { c.Server.ConnTimeout.Duration = -time.Second }, "conn_timeout"},
		{"symbol", func(c *Config) { c.Book.Symbol = " " }, "book: symbol"},
		{"queue", func(c *Config) { c.Book.QueueSize = 0 }, "queue_size"},
		{"brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "kafka: brokers"},
		{"topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }, "kafka: topic"},
		{"metrics", func(c *Config) { c.Metrics.Address = "" }, "metrics: address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	// Kafka settings are only checked when it is enabled.
	cfg := Defaults()
	cfg.Kafka.Brokers = nil
	assert.NoError(t, cfg.Validate())
}
