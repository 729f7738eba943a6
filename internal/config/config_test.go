package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Env:            "development",
		StoreDriver:    DriverMongo,
		MongoURI:       "mongodb://localhost:27017",
		MongoDatabase:  "chat",
		JWTSecret:      "secret",
		WSAuthMode:     AuthVerify,
		WSPingInterval: 25 * time.Second,
		WSPongTimeout:  60 * time.Second,
	}
}

// unsetenv removes key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadDefaults(t *testing.T) {
	unsetenv(t, "PORT")
	unsetenv(t, "WS_PING_INTERVAL")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg := Load()
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, 25*time.Second, cfg.WSPingInterval)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.DebugRoutes)
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("WS_PING_INTERVAL", "10s")
	t.Setenv("WS_PONG_TIMEOUT", "not-a-duration")
	t.Setenv("WS_EVENTS_PER_SECOND", "-3")

	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.WSPingInterval)
	assert.Equal(t, 60*time.Second, cfg.WSPongTimeout)
	assert.Equal(t, float64(20), cfg.WSEventsPerSecond)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }, "unknown STORE_DRIVER"},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = DriverPostgres }, "DB_DSN"},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is required"},
		{"short production secret", func(c *Config) { c.Env = "production" }, "at least 32"},
		{"trust in production", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = strings.Repeat("x", 32)
			c.WSAuthMode = AuthTrust
		}, "trust is not allowed"},
		{"unknown auth mode", func(c *Config) { c.WSAuthMode = "open" }, "unknown WS_AUTH_MODE"},
		{"pong before ping", func(c *Config) { c.WSPongTimeout = time.Second }, "WS_PONG_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := validConfig()
	cfg.WSAuthMode = AuthTrust
	assert.NoError(t, cfg.Validate())
}
