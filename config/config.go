package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Status store backends
const (
	STATUS_STORE_REDIS  = "redis"
	STATUS_STORE_BADGER = "badger"
)

// Event source backends
const (
	SOURCE_KIND_POSTGRES = "postgres"
	SOURCE_KIND_FIXTURE  = "fixture"
)

// Refresh defaults
const DEFAULT_BOUNDARY_HOUR = 4
const DEFAULT_TIMEZONE = "Europe/London"
const DEFAULT_MAX_RETRIES = 3
const DEFAULT_RETRY_DELAY = 30 * time.Second
const DEFAULT_SNAPSHOT_TTL = 24 * time.Hour

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Redis    RedisConfig    `koanf:"redis"`
	Source   SourceConfig   `koanf:"source"`
	Refresh  RefreshConfig  `koanf:"refresh"`
	Status   StatusConfig   `koanf:"status"`
	CronJob  CronJobConfig  `koanf:"cronjob"`
	Fallback FallbackConfig `koanf:"fallback"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type RedisConfig struct {
	Host           string        `koanf:"host" validate:"required"`
	Port           int           `koanf:"port" validate:"min=1,max=65535"`
	Username       string        `koanf:"username"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db" validate:"min=0"`
	DialTimeout    time.Duration `koanf:"dial_timeout" validate:"gt=0"`
	OpTimeout      time.Duration `koanf:"op_timeout" validate:"gt=0"`
	PoolSize       int           `koanf:"pool_size" validate:"min=1"`
	HealthInterval time.Duration `koanf:"health_interval" validate:"gt=0"`
}

// Address returns host:port.
func (r RedisConfig) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type SourceConfig struct {
	Kind         string        `koanf:"kind" validate:"oneof=postgres fixture"`
	DSN          string        `koanf:"dsn" validate:"required_if=Kind postgres"`
	Table        string        `koanf:"table" validate:"required"`
	MaxConns     int           `koanf:"max_conns" validate:"min=1"`
	QueryTimeout time.Duration `koanf:"query_timeout" validate:"gt=0"`
	SlowQuery    time.Duration `koanf:"slow_query"`
	FixturePath  string        `koanf:"fixture_path" validate:"required_if=Kind fixture"`
}

type RefreshConfig struct {
	CronSecret          string        `koanf:"cron_secret"`
	BoundaryHour        int           `koanf:"boundary_hour" validate:"min=0,max=23"`
	Timezone            string        `koanf:"timezone" validate:"required"`
	MaxRetries          int           `koanf:"max_retries" validate:"min=0"`
	RetryDelay          time.Duration `koanf:"retry_delay" validate:"gte=0"`
	SnapshotTTL         time.Duration `koanf:"snapshot_ttl" validate:"gt=0"`
	AttemptTimeout      time.Duration `koanf:"attempt_timeout" validate:"gt=0"`
	GeoWriteConcurrency int           `koanf:"geo_write_concurrency" validate:"min=1"`
}

// Location loads the configured time zone.
func (r RefreshConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

type StatusConfig struct {
	Store       string `koanf:"store" validate:"oneof=redis badger"`
	BadgerPath  string `koanf:"badger_path" validate:"required_if=Store badger"`
	HistorySize int    `koanf:"history_size" validate:"min=1"`
}

// CronJobConfig enables the cron-job.org status source when APIKey and JobID are set.
type CronJobConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	APIKey  string        `koanf:"api_key"`
	JobID   string        `koanf:"job_id"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// Enabled reports whether the external cron status source is configured.
func (c CronJobConfig) Enabled() bool {
	return c.APIKey != "" && c.JobID != ""
}

type FallbackConfig struct {
	RatePerMinute float64 `koanf:"rate_per_minute" validate:"gt=0"`
	Burst         int     `koanf:"burst" validate:"min=1"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return err
	}
	if _, err := c.Refresh.Location(); err != nil {
		return err
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Host:           "redis",
			Port:           6379,
			Username:       "default",
			DialTimeout:    10 * time.Second,
			OpTimeout:      5 * time.Second,
			PoolSize:       10,
			HealthInterval: 30 * time.Second,
		},
		Source: SourceConfig{
			Kind:         SOURCE_KIND_POSTGRES,
			Table:        "events_live",
			MaxConns:     4,
			QueryTimeout: 30 * time.Second,
			SlowQuery:    2 * time.Second,
		},
		Refresh: RefreshConfig{
			BoundaryHour:        DEFAULT_BOUNDARY_HOUR,
			Timezone:            DEFAULT_TIMEZONE,
			MaxRetries:          DEFAULT_MAX_RETRIES,
			RetryDelay:          DEFAULT_RETRY_DELAY,
			SnapshotTTL:         DEFAULT_SNAPSHOT_TTL,
			AttemptTimeout:      2 * time.Minute,
			GeoWriteConcurrency: 16,
		},
		Status: StatusConfig{
			Store:       STATUS_STORE_REDIS,
			BadgerPath:  "./data/status",
			HistorySize: 50,
		},
		CronJob: CronJobConfig{
			BaseURL: "https://api.cron-job.org",
			Timeout: 10 * time.Second,
		},
		Fallback: FallbackConfig{
			RatePerMinute: 6,
			Burst:         2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
