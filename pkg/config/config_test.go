package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/CliForge/dbauth/pkg/dbauth/storage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("db-auth")

	if loader.appName != "db-auth" {
		t.Errorf("expected appName 'db-auth', got %s", loader.appName)
	}
	if loader.envPrefix != "DB_AUTH" {
		t.Errorf("expected envPrefix 'DB_AUTH', got %s", loader.envPrefix)
	}
	if NewLoader("").appName != DefaultAppName {
		t.Errorf("expected default app name")
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("DBAUTH_CONFIG", "")
	loader := NewLoader("dbauth")
	assert.True(t, strings.HasSuffix(loader.ConfigPath(), filepath.Join("dbauth", "config.yaml")))

	t.Setenv("DBAUTH_CONFIG", "/etc/dbauth.yaml")
	assert.Equal(t, "/etc/dbauth.yaml", loader.ConfigPath())

	loader.WithConfigPath("/tmp/explicit.yaml")
	assert.Equal(t, "/tmp/explicit.yaml", loader.ConfigPath())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DBAUTH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	config, err := NewLoader("dbauth").Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
issuer:
  endpoint: cam.internal.example.com
  timeout: 10s
refresh:
  interval: 2s
  attempts: 5
fallback:
  type: chain
  dir: /var/lib/dbauth
  keyring_service: dbauth-prod
logging:
  level: "<root>=INFO"
metrics:
  enabled: true
`)

	config, err := NewLoader("dbauth").WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "cam.internal.example.com", config.Issuer.Endpoint)
	assert.Equal(t, 10*time.Second, config.Issuer.Timeout)
	assert.Equal(t, 2*time.Second, config.Refresh.Interval)
	assert.Equal(t, 5, config.Refresh.Attempts)
	assert.Equal(t, storage.FallbackConfig{
		Type:           storage.FallbackTypeChain,
		Dir:            "/var/lib/dbauth",
		KeyringService: "dbauth-prod",
	}, config.Fallback)
	assert.Equal(t, "<root>=INFO", config.Logging.Level)
	assert.True(t, config.Metrics.Enabled)

	// Unset keys keep their defaults.
	assert.Equal(t, Default().Refresh.RetryDelay, config.Refresh.RetryDelay)
	assert.Equal(t, Default().Masking, config.Masking)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
refresh:
  interval: 2s
fallback:
  type: file
`)
	t.Setenv("DBAUTH_REFRESH_INTERVAL", "7s")
	t.Setenv("DBAUTH_FALLBACK_TYPE", "none")
	t.Setenv("DBAUTH_ISSUER_TIMEOUT", "3s")

	config, err := NewLoader("dbauth").WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, config.Refresh.Interval)
	assert.Equal(t, storage.FallbackTypeNone, config.Fallback.Type)
	assert.Equal(t, 3*time.Second, config.Issuer.Timeout)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "explicit file missing",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.yaml") },
		},
		{
			name: "malformed yaml",
			path: func(t *testing.T) string { return writeConfig(t, "issuer: [unclosed") },
		},
		{
			name: "invalid values",
			path: func(t *testing.T) string { return writeConfig(t, "refresh:\n  attempts: 0\n") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader("dbauth").WithConfigPath(tt.path(t)).Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid default", func(*Config) {}, ""},
		{"empty endpoint", func(c *Config) { c.Issuer.Endpoint = "" }, "issuer.endpoint"},
		{"zero timeout", func(c *Config) { c.Issuer.Timeout = 0 }, "issuer.timeout"},
		{"interval above max delay", func(c *Config) { c.Refresh.Interval = 25 * time.Hour }, "refresh.interval"},
		{"zero attempts", func(c *Config) { c.Refresh.Attempts = 0 }, "refresh.attempts"},
		{"max retry delay below retry delay", func(c *Config) { c.Refresh.MaxRetryDelay = time.Millisecond }, "refresh.max_retry_delay"},
		{"zero request timeout", func(c *Config) { c.Refresh.RequestTimeout = 0 }, "refresh.request_timeout"},
		{"unknown fallback", func(c *Config) { c.Fallback.Type = "vault" }, "fallback.type"},
		{"keyring without service", func(c *Config) {
			c.Fallback.Type = storage.FallbackTypeKeyring
			c.Fallback.KeyringService = ""
		}, "fallback.keyring_service"},
		{"bad log level", func(c *Config) { c.Logging.Level = "<root>=LOUD" }, "logging.level"},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}, "metrics.address"},
		{"bad masking style", func(c *Config) { c.Masking.Style = "rot13" }, "masking"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)

			err := config.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.NotValid))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigYAML(t *testing.T) {
	out, err := Default().YAML()
	require.NoError(t, err)

	assert.Contains(t, out, "endpoint: cam.tencentcloudapi.com")
	assert.Contains(t, out, "interval: 5s")

	var roundTrip Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &roundTrip))
	assert.Equal(t, *Default(), roundTrip)
}
