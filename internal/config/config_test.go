package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 5, cfg.RateLimitMaxEvents)
	assert.Equal(t, 45*time.Second, cfg.RingTimeout)
	assert.Equal(t, 1024, cfg.RecorderQueueSize)
	assert.EqualValues(t, 65536, cfg.WSMaxMessageBytes)
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("POSTGRES_DB", "calls")
	t.Setenv("POSTGRES_DB_TEST", "calls_test")
	t.Setenv("ENV", "test")
	t.Setenv("RATE_LIMIT_MAX_EVENTS", "10")
	t.Setenv("RING_TIMEOUT", "1m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.RateLimitMaxEvents)
	assert.Equal(t, time.Minute, cfg.RingTimeout)
	assert.Equal(t, "calls_test", cfg.Postgres.Name())
	assert.Equal(t, "postgres://postgres:@localhost:5432/calls_test?sslmode=disable", cfg.Postgres.DSN(cfg.Postgres.Name()))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreDriver:        DriverMemory,
			RateLimitWindow:    time.Second,
			RateLimitMaxEvents: 5,
			RingTimeout:        45 * time.Second,
			SweepInterval:      5 * time.Second,
			StoreWriteTimeout:  5 * time.Second,
			RecorderQueueSize:  16,
			SendBuffer:         16,
			WSWriteWait:        time.Second,
			WSPongWait:         time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"unknown driver":     func(c *Config) { c.StoreDriver = "redis" },
		"postgres no secret": func(c *Config) { c.StoreDriver = DriverPostgres; c.Postgres.DB = "x" },
		"zero window":        func(c *Config) { c.RateLimitWindow = 0 },
		"zero max events":    func(c *Config) { c.RateLimitMaxEvents = 0 },
		"ring below sweep":   func(c *Config) { c.RingTimeout = time.Second },
		"zero queue":         func(c *Config) { c.RecorderQueueSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadDatabase(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("POSTGRES_DB", "")
	t.Setenv("ENV", "")
	_, err := LoadDatabase()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("POSTGRES_DB", "calls")
	t.Setenv("POSTGRES_HOST", "db")
	pg, err := LoadDatabase()
	require.NoError(t, err)
	assert.Equal(t, "calls", pg.Name())
	assert.Equal(t, "db", pg.Host)
	assert.Equal(t, 3, pg.Retry)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
