package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, time.UTC.String(), cfg.Location().String())
	assert.Equal(t, 30*24*time.Hour, cfg.ReceivableTerm())
	assert.Equal(t, 3, cfg.TxMaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.TxRetryBackoff)
	assert.True(t, cfg.LowStockAlerts)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigBusinessTimezone(t *testing.T) {
	t.Setenv("BUSINESS_TIMEZONE", "America/Mexico_City")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", cfg.Location().String())

	t.Setenv("BUSINESS_TIMEZONE", "Mars/Olympus")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsNonPositiveSettings(t *testing.T) {
	t.Setenv("RECEIVABLE_TERM_DAYS", "0")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("RECEIVABLE_TERM_DAYS", "15")
	t.Setenv("TX_MAX_ATTEMPTS", "-1")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("TX_MAX_ATTEMPTS", "3")
	t.Setenv("TX_RETRY_BACKOFF", "-5ms")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestNilConfigLocation(t *testing.T) {
	var cfg *Config
	assert.Equal(t, time.UTC, cfg.Location())
}
