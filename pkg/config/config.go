package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server and job configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// DatabaseURL selects the Postgres store. Without it SQLitePath selects
	// the SQLite store, and without both requests live in memory.
	DatabaseURL string
	SQLitePath  string
	RedisAddr   string

	KafkaBrokers []string
	KafkaTopic   string
	OTelEndpoint string

	RulesFile        string
	MetricsFile      string
	WorkItemsFile    string
	SLAPollInterval  time.Duration
	ScanPollInterval time.Duration

	APIRateLimit float64
	APIRateBurst int
	NotifyRate   float64

	ArchiveBackend string
	ArchiveBucket  string
	ArchivePrefix  string
	ArchiveDir     string

	// ExecutorURL receives approved action steps. Without it apply is a dry
	// run.
	ExecutorURL string
}

// StoreBackend names the approval store Load selected.
func (c *Config) StoreBackend() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	default:
		return "memory"
	}
}

// Load loads configuration from environment variables. Malformed values
// return a ConfigurationError.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           envOr("PORT", "8080"),
		LogLevel:       envOr("LOG_LEVEL", "INFO"),
		LogFormat:      envOr("LOG_FORMAT", "text"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     os.Getenv("SQLITE_PATH"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaTopic:     envOr("KAFKA_TOPIC", "opsgate.events"),
		OTelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		RulesFile:      os.Getenv("RULES_FILE"),
		MetricsFile:    os.Getenv("METRICS_FILE"),
		WorkItemsFile:  os.Getenv("WORKITEMS_FILE"),
		ArchiveBackend: envOr("ARCHIVE_BACKEND", "local"),
		ArchiveBucket:  os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix:  envOr("ARCHIVE_PREFIX", "approvals/"),
		ArchiveDir:     envOr("ARCHIVE_DIR", "./data/archive"),
		ExecutorURL:    os.Getenv("EXECUTOR_URL"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.SLAPollInterval, err = envDuration("SLA_POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ScanPollInterval, err = envDuration("SCAN_POLL_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.APIRateLimit, err = envFloat("API_RATE_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.APIRateBurst, err = envInt("API_RATE_BURST", 40); err != nil {
		return nil, err
	}
	if cfg.NotifyRate, err = envFloat("NOTIFY_RATE", 50); err != nil {
		return nil, err
	}

	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return nil, &ConfigurationError{Field: "LOG_LEVEL", Reason: fmt.Sprintf("unknown level %q", cfg.LogLevel)}
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, &ConfigurationError{Field: "LOG_FORMAT", Reason: fmt.Sprintf("must be text or json, got %q", cfg.LogFormat)}
	}
	switch cfg.ArchiveBackend {
	case "local":
	case "s3", "gcs":
		if cfg.ArchiveBucket == "" {
			return nil, &ConfigurationError{Field: "ARCHIVE_BUCKET", Reason: "required for " + cfg.ArchiveBackend}
		}
	default:
		return nil, &ConfigurationError{Field: "ARCHIVE_BACKEND", Reason: fmt.Sprintf("unknown backend %q", cfg.ArchiveBackend)}
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &ConfigurationError{Field: key, Reason: err.Error()}
	}
	if d <= 0 {
		return 0, &ConfigurationError{Field: key, Reason: "must be positive"}
	}
	return d, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be a positive number, got %q", v)}
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be a positive integer, got %q", v)}
	}
	return n, nil
}
