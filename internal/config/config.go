package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	devJWTSecret = "dev-secret-change-me"
)

var ErrInvalidConfig = errors.New("invalid config")

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	DBTest   string
	Env      string
	Retry    int
}

// Name returns the database selected by ENV.
func (p Postgres) Name() string {
	if p.Env == "test" {
		return p.DBTest
	}
	return p.DB
}

func (p Postgres) DSN(database string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, database,
	)
}

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	StoreDriver string
	Postgres    Postgres

	JWTSecret string

	RateLimitWindow    time.Duration
	RateLimitMaxEvents int

	RingTimeout       time.Duration
	SweepInterval     time.Duration
	StoreWriteTimeout time.Duration
	RecorderQueueSize int

	SendBuffer        int
	WSWriteWait       time.Duration
	WSPongWait        time.Duration
	WSMaxMessageBytes int64
}

// Load reads an optional .env file, then the environment over the defaults.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only what database tooling needs.
func LoadDatabase() (Postgres, error) {
	cfg, err := read()
	if err != nil {
		return Postgres{}, err
	}
	if cfg.Postgres.Name() == "" {
		return Postgres{}, fmt.Errorf("%w: POSTGRES_DB is required", ErrInvalidConfig)
	}
	return cfg.Postgres, nil
}

func read() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:    v.GetString("http_addr"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		StoreDriver: strings.ToLower(v.GetString("store_driver")),
		Postgres: Postgres{
			Host:     v.GetString("postgres_host"),
			Port:     v.GetString("postgres_port"),
			User:     v.GetString("postgres_user"),
			Password: v.GetString("postgres_password"),
			DB:       v.GetString("postgres_db"),
			DBTest:   v.GetString("postgres_db_test"),
			Env:      v.GetString("env"),
			Retry:    v.GetInt("db_connect_retry"),
		},
		JWTSecret:          v.GetString("jwt_secret"),
		RateLimitWindow:    v.GetDuration("rate_limit_window"),
		RateLimitMaxEvents: v.GetInt("rate_limit_max_events"),
		RingTimeout:        v.GetDuration("ring_timeout"),
		SweepInterval:      v.GetDuration("sweep_interval"),
		StoreWriteTimeout:  v.GetDuration("store_write_timeout"),
		RecorderQueueSize:  v.GetInt("recorder_queue_size"),
		SendBuffer:         v.GetInt("send_buffer"),
		WSWriteWait:        v.GetDuration("ws_write_wait"),
		WSPongWait:         v.GetDuration("ws_pong_wait"),
		WSMaxMessageBytes:  v.GetInt64("ws_max_message_bytes"),
	}

	if cfg.JWTSecret == "" && cfg.StoreDriver == DriverMemory {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("store_driver", DriverPostgres)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db", "")
	v.SetDefault("postgres_db_test", "")
	v.SetDefault("env", "")
	v.SetDefault("db_connect_retry", 3)

	v.SetDefault("jwt_secret", "")
	v.SetDefault("rate_limit_window", "1s")
	v.SetDefault("rate_limit_max_events", 5)
	v.SetDefault("ring_timeout", "45s")
	v.SetDefault("sweep_interval", "5s")
	v.SetDefault("store_write_timeout", "5s")
	v.SetDefault("recorder_queue_size", 1024)

	v.SetDefault("send_buffer", 64)
	v.SetDefault("ws_write_wait", "10s")
	v.SetDefault("ws_pong_wait", "60s")
	v.SetDefault("ws_max_message_bytes", 65536)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required"))
		}
		if c.Postgres.Name() == "" {
			errs = append(errs, errors.New("POSTGRES_DB is required"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.RateLimitMaxEvents <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_EVENTS must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.RingTimeout < c.SweepInterval {
		errs = append(errs, errors.New("RING_TIMEOUT must not be shorter than SWEEP_INTERVAL"))
	}
	if c.StoreWriteTimeout <= 0 {
		errs = append(errs, errors.New("STORE_WRITE_TIMEOUT must be positive"))
	}
	if c.RecorderQueueSize <= 0 || c.SendBuffer <= 0 {
		errs = append(errs, errors.New("RECORDER_QUEUE_SIZE and SEND_BUFFER must be positive"))
	}
	if c.WSPongWait <= 0 || c.WSWriteWait <= 0 {
		errs = append(errs, errors.New("WS_PONG_WAIT and WS_WRITE_WAIT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
