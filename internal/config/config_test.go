// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers YAML parsing, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-value-0123456789abcdef"

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:9090"

database:
  path: "/tmp/test.db"

auth:
  jwt_secret: "`+testSecret+`"
  auto_register: true
  access_token_ttl: "1h"
  refresh_token_ttl: "48h"
  api_key_ttl: "2160h"
  seed:
    username: "admin"
    email: "admin@example.com"
    password: "admin123"

ratelimit:
  max_requests: 10
  window: "30s"

api_keys:
  - name: "ci-bot"
    key: "machine-key-1"
  - name: "old-bot"
    key: "machine-key-2"
    disabled: true

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.True(t, cfg.Auth.AutoRegister)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 48*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, 2160*time.Hour, cfg.Auth.APIKeyTTL)
	assert.Equal(t, "admin", cfg.Auth.Seed.Username)
	assert.Equal(t, "admin123", cfg.Auth.Seed.Password)
	assert.Equal(t, 10, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	require.Len(t, cfg.APIKeys, 2)
	assert.Equal(t, "ci-bot", cfg.APIKeys[0].Name)
	assert.False(t, cfg.APIKeys[0].Disabled)
	assert.True(t, cfg.APIKeys[1].Disabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/test.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultAccessTokenTTL, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, DefaultRefreshTokenTTL, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, DefaultAPIKeyTTL, cfg.Auth.APIKeyTTL)
	assert.Equal(t, DefaultRateLimitWindow, cfg.RateLimit.Window)
	assert.Equal(t, DefaultRateLimitMaxRequests, cfg.RateLimit.MaxRequests)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Auth.AutoRegister)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", testSecret)
	t.Setenv("TEST_DB_PATH", "/tmp/env-test.db")

	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "${TEST_DB_PATH}"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "/tmp/env-test.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/gateway.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/test.db"
auth:
  jwt_secret: "`+testSecret+`"
  access_token_ttl: "not-a-duration"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token_ttl")
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{HTTPAddr: "localhost:8080"},
			Database: DatabaseConfig{Path: "/tmp/test.db"},
			Auth:     AuthConfig{JWTSecret: testSecret},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "server.http_addr",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "jwt_secret",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErr: "at least",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RateLimit.MaxRequests = -1 },
			wantErr: "max_requests",
		},
		{
			name: "static key without value",
			mutate: func(c *Config) {
				c.APIKeys = []StaticAPIKey{{Name: "nameless"}}
			},
			wantErr: "key is required",
		},
		{
			name: "duplicate static keys",
			mutate: func(c *Config) {
				c.APIKeys = []StaticAPIKey{
					{Name: "a", Key: "same"},
					{Name: "b", Key: "same"},
				}
			},
			wantErr: "duplicated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	// The base config itself is valid.
	assert.NoError(t, base().Validate())
}
