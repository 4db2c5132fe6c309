// Package config carga la configuración del servicio desde YAML con
// overrides por variables de entorno (IDPGATE_*).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env" env:"IDPGATE_ENV"`
		LogLevel string `yaml:"log_level" env:"IDPGATE_LOG_LEVEL"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr" env:"IDPGATE_ADDR"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"IDPGATE_CORS_ORIGINS" envSeparator:","`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
	} `yaml:"server"`

	// Directory es el servicio de identidad remoto (intents, usuarios, orgs).
	Directory struct {
		BaseURL string `yaml:"base_url" env:"IDPGATE_DIRECTORY_URL"`
		Token   string `yaml:"token" env:"IDPGATE_DIRECTORY_TOKEN"`
		Timeout string `yaml:"timeout" env:"IDPGATE_DIRECTORY_TIMEOUT"`
	} `yaml:"directory"`

	Cache struct {
		Kind  string `yaml:"kind" env:"IDPGATE_CACHE_KIND"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr" env:"IDPGATE_REDIS_ADDR"`
			Password string `yaml:"password" env:"IDPGATE_REDIS_PASSWORD"`
			DB       int    `yaml:"db" env:"IDPGATE_REDIS_DB"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Rate struct {
		Enabled  bool `yaml:"enabled" env:"IDPGATE_RATE_ENABLED"`
		Callback struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"callback"`
	} `yaml:"rate"`

	// Link configura las sesiones de vinculación explícita (account linking).
	Link struct {
		FingerprintCookie string `yaml:"fingerprint_cookie"`
		SessionTTL        string `yaml:"session_ttl"`
		SigningSecret     string `yaml:"signing_secret" env:"IDPGATE_LINK_SECRET"`
	} `yaml:"link"`

	Audit struct {
		// DSN de postgres para persistir eventos de auditoría. Vacío = solo logs.
		DSN string `yaml:"dsn" env:"IDPGATE_AUDIT_DSN"`
	} `yaml:"audit"`
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Env gana sobre YAML
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8084"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Directory.Timeout == "" {
		c.Directory.Timeout = "15s"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "idpgate"
	}
	if c.Rate.Callback.Limit == 0 {
		c.Rate.Callback.Limit = 30
	}
	if c.Rate.Callback.Window == "" {
		c.Rate.Callback.Window = "1m"
	}
	if c.Link.FingerprintCookie == "" {
		c.Link.FingerprintCookie = "fingerprintId"
	}
	if c.Link.SessionTTL == "" {
		c.Link.SessionTTL = "1h"
	}
}

// DurationOr parsea una duración tipo "10s" con fallback si falta o es inválida.
func DurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
