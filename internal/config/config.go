package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config path is given.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Port        int     `yaml:"port"`
		APIKey      string  `yaml:"api_key"`
		RateLimit   float64 `yaml:"rate_limit"`
		RateBurst   int     `yaml:"rate_burst"`
		ReadTimeout int     `yaml:"read_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
		LockTTLSeconds  int    `yaml:"lock_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Scheduling struct {
		Timezone         string `yaml:"timezone"`
		ReservationHours int    `yaml:"reservation_hours"`
	} `yaml:"scheduling"`

	Sweeper struct {
		Enabled           bool   `yaml:"enabled"`
		Schedule          string `yaml:"schedule"`
		StartDelaySeconds int    `yaml:"start_delay_seconds"`
		GraceMinutes      int    `yaml:"grace_minutes"`
	} `yaml:"sweeper"`
}

// Load reads the YAML config at path. Variables from a .env file in the
// working directory are loaded first so ${VAR} placeholders can refer to them.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/scheduler.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ServerPort() int {
	if c.Server.Port <= 0 {
		return 8080
	}
	return c.Server.Port
}

// RateLimit returns requests per second and burst for mutating endpoints.
func (c *Config) RateLimit() (float64, int) {
	limit, burst := c.Server.RateLimit, c.Server.RateBurst
	if limit <= 0 {
		limit = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return limit, burst
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ReadTimeout) * time.Second
}

func (c *Config) BackupPath() string {
	if c.Backup.Path == "" {
		return "backups"
	}
	return c.Backup.Path
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) HealthCheckPort() int {
	if c.Monitoring.HealthCheckPort <= 0 {
		return 8090
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort <= 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

// Location returns the scheduling time zone, UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduling.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Scheduling.Timezone)
}

func (c *Config) ReservationHold() time.Duration {
	if c.Scheduling.ReservationHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Scheduling.ReservationHours) * time.Hour
}

func (c *Config) SweepSchedule() string {
	if c.Sweeper.Schedule == "" {
		return "@every 1h"
	}
	return c.Sweeper.Schedule
}

func (c *Config) SweepStartDelay() time.Duration {
	if c.Sweeper.StartDelaySeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Sweeper.StartDelaySeconds) * time.Second
}

func (c *Config) SweepGrace() time.Duration {
	if c.Sweeper.GraceMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Sweeper.GraceMinutes) * time.Minute
}
