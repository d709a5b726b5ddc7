package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trivia-live-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// PublicURL is encoded in join QR codes, e.g. https://trivia.example.com
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game struct {
		DefaultTimeLimit int   `yaml:"default_time_limit"`
		ShowLeaderboard  *bool `yaml:"show_leaderboard"`
		AutoProgress     bool  `yaml:"auto_progress"`
	} `yaml:"game"`
	Auth struct {
		Secret string `yaml:"secret"`
		Issuer string `yaml:"issuer"`
	} `yaml:"auth"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path. ${VAR} references are expanded from
// the environment so secrets can stay in .env.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets a handful of deployment settings override the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = strings.Split(v, ",")
	}
}

// GameSettings are the defaults applied to games created without explicit settings.
func (c Config) GameSettings() domain.Settings {
	s := domain.DefaultSettings()
	if c.Game.DefaultTimeLimit > 0 {
		s.QuestionTimeLimit = c.Game.DefaultTimeLimit
	}
	if c.Game.ShowLeaderboard != nil {
		s.ShowLeaderboard = *c.Game.ShowLeaderboard
	}
	s.AutoProgress = c.Game.AutoProgress
	return s
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
