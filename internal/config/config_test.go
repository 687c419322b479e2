package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadParsesAndClampsNumbers(t *testing.T) {
	t.Setenv("SETTLEMENT_MAX_ATTEMPTS", "0")
	t.Setenv("RATE_REFRESH_INTERVAL", "15m")
	t.Setenv("RATE_CACHE_TTL_SECONDS", "not-a-number")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("PORT", " 9090 ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.SettlementMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.RateRefreshInterval)
	assert.Equal(t, time.Hour, cfg.RateCacheTTL())
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, ":9090", cfg.Address())
}

var errProvider = errors.New("environment unreadable")

type failingProvider struct{}

func (failingProvider) ReadBytes() ([]byte, error) { return nil, errProvider }

func (failingProvider) Read() (map[string]interface{}, error) { return nil, errProvider }

func TestLoadReportsProviderFailure(t *testing.T) {
	_, err := loadFrom(failingProvider{})
	assert.ErrorIs(t, err, errProvider)
}
