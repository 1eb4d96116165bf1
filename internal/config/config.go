// Package config загружает конфигурацию сервиса.
//
// Порядок: значения по умолчанию → YAML файл (опционально, ${VAR} раскрываются
// из окружения) → переменные окружения. .env загружается в main до Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/shaiso/Bulksub/internal/scheduler"
	"github.com/shaiso/Bulksub/internal/worker"
)

// Config — конфигурация bulksub-api.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Google   GoogleConfig   `yaml:"google"`
	Worker   WorkerConfig   `yaml:"worker"`
	Quota    QuotaConfig    `yaml:"quota"`
}

// ServerConfig — HTTP сервер.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig — Postgres. Пустой URL включает in-memory хранилище.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig — аренда runs. Пустой URL отключает аренду.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// RabbitMQConfig — события и команды. Пустой URL отключает очередь.
type RabbitMQConfig struct {
	URL string `yaml:"url"`
}

// GoogleConfig — OAuth клиент.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// WorkerConfig — pacing и обработка квоты.
type WorkerConfig struct {
	DefaultDelay  time.Duration `yaml:"default_delay"`
	MinDelay      time.Duration `yaml:"min_delay"`
	QuotaRecheck  time.Duration `yaml:"quota_recheck"`
	CoolDown      time.Duration `yaml:"cool_down"`
	SuccessWindow time.Duration `yaml:"success_window"`
}

// QuotaConfig — расписание сброса QUOTA ошибок.
type QuotaConfig struct {
	ResetCron string `yaml:"reset_cron"`
	Timezone  string `yaml:"timezone"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			LeaseTTL: 30 * time.Second,
		},
		Google: GoogleConfig{
			RedirectURL: "http://localhost:8080/oauth2callback",
		},
		Worker: WorkerConfig{
			DefaultDelay:  worker.DefaultDelay,
			MinDelay:      worker.MinDelay,
			QuotaRecheck:  30 * time.Minute,
			CoolDown:      4 * time.Hour,
			SuccessWindow: time.Hour,
		},
		Quota: QuotaConfig{
			ResetCron: scheduler.DefaultCronExpr,
			Timezone:  scheduler.DefaultTimezone,
		},
	}
}

// Load читает конфигурацию. path может быть пустым: тогда используются
// значения по умолчанию и переменные окружения.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: invalid port %d", c.Server.Port))
	}
	if c.Worker.MinDelay <= 0 {
		errs = append(errs, errors.New("worker.min_delay: must be positive"))
	}
	if c.Worker.DefaultDelay < c.Worker.MinDelay {
		errs = append(errs, fmt.Errorf("worker.default_delay: %s is below min_delay %s", c.Worker.DefaultDelay, c.Worker.MinDelay))
	}
	if c.Quota.ResetCron != "" {
		if err := scheduler.ValidateCronExpr(c.Quota.ResetCron); err != nil {
			errs = append(errs, fmt.Errorf("quota.reset_cron: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Addr возвращает адрес HTTP сервера.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// HasGoogle возвращает true, если OAuth клиент настроен.
func (c *Config) HasGoogle() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// --- Helpers ---

// applyEnv переопределяет значения из переменных окружения.
func (c *Config) applyEnv() error {
	setString(&c.Database.URL, "DB_URL")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Google.RedirectURL, "GOOGLE_REDIRECT_URI")
	setString(&c.Quota.ResetCron, "QUOTA_RESET_CRON")
	setString(&c.Quota.Timezone, "QUOTA_TIMEZONE")

	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("API_PORT: %w", err)
		}
		c.Server.Port = port
	}

	if v := os.Getenv("DEFAULT_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEFAULT_DELAY_MS: %w", err)
		}
		c.Worker.DefaultDelay = time.Duration(ms) * time.Millisecond
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
