package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vivesbank/banking-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "bank.db", cfg.DBPath)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Zero(t, cfg.ReversalWindow)
	assert.True(t, cfg.ZeroCeilingUnlimited)
	assert.Equal(t, time.Hour, cfg.DebitRunInterval)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("REVERSAL_WINDOW", "24h")
	t.Setenv("ZERO_CEILING_UNLIMITED", "false")

	cfg := config.Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 24*time.Hour, cfg.ReversalWindow)
	assert.False(t, cfg.ZeroCeilingUnlimited)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("REVERSAL_WINDOW", "soon")

	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Zero(t, cfg.ReversalWindow)
}
