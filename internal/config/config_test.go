package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverBolt, cfg.Store.Driver)
	assert.Equal(t, KeyStorageStored, cfg.Security.KeyStorage)
	assert.Equal(t, crypto.ModeAuthenticated, cfg.Security.EnvelopeMode)
	assert.Equal(t, 30*time.Minute, cfg.Security.SessionLifetime)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, 5, cfg.Security.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Security.LockoutDuration)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("SECURITY_KEY_STORAGE", "derived")
	t.Setenv("SECURITY_ENVELOPE_MODE", "cbc")
	t.Setenv("SECURITY_SESSION_LIFETIME", "10m")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, KeyStorageDerived, cfg.Security.KeyStorage)
	assert.Equal(t, crypto.ModeLegacyBlock, cfg.Security.EnvelopeMode)
	assert.Equal(t, 10*time.Minute, cfg.Security.SessionLifetime)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown_driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"unknown_key_storage", map[string]string{"SECURITY_KEY_STORAGE": "hsm"}},
		{"unknown_envelope_mode", map[string]string{"SECURITY_ENVELOPE_MODE": "ecb"}},
		{"production_without_secure_cookies", map[string]string{"ENV": "production"}},
		{"empty_bolt_path", map[string]string{"STORE_PATH": " "}},
		{"zero_rate_limit_requests", map[string]string{"RATE_LIMIT_REQUESTS": "0"}},
		{"negative_rate_limit_requests", map[string]string{"RATE_LIMIT_REQUESTS": "-5"}},
		{"zero_rate_limit_window", map[string]string{"RATE_LIMIT_WINDOW": "0s"}},
		{"sub_second_rate_limit_window", map[string]string{"RATE_LIMIT_WINDOW": "500ms"}},
		{"zero_cleanup_interval", map[string]string{"SECURITY_CLEANUP_INTERVAL": "0s"}},
		{"negative_metrics_interval", map[string]string{"SECURITY_METRICS_INTERVAL": "-1s"}},
		{"zero_session_lifetime", map[string]string{"SECURITY_SESSION_LIFETIME": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
