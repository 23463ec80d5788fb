// Package config loads server configuration from .env / environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the server's runtime configuration.
type Config struct {
	Port         int
	DBPath       string   // SQLite path; ":memory:" for in-memory
	DatabaseURL  string   // optional PostgreSQL URL; overrides DBPath for movements
	KafkaBrokers []string // empty = events disabled

	// ReversalWindow bounds transfer reversal; zero = unbounded.
	ReversalWindow time.Duration

	// ZeroCeilingUnlimited picks the semantics of zero card ceilings.
	ZeroCeilingUnlimited bool

	// DebitRunInterval is how often due recurring direct debits are
	// executed; zero disables the runner.
	DebitRunInterval time.Duration
}

// Load reads .env (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment variables")
	}

	return &Config{
		Port:                 getInt("PORT", 8080),
		DBPath:               getEnv("DB_PATH", "bank.db"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		KafkaBrokers:         splitList(getEnv("KAFKA_BROKERS", "")),
		ReversalWindow:       getDuration("REVERSAL_WINDOW", 0),
		ZeroCeilingUnlimited: getBool("ZERO_CEILING_UNLIMITED", true),
		DebitRunInterval:     getDuration("DEBIT_RUN_INTERVAL", time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("invalid integer in environment", "key", key, "value", v)
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		slog.Warn("invalid boolean in environment", "key", key, "value", v)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("invalid duration in environment", "key", key, "value", v)
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
