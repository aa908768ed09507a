package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Attempt store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Attempts struct {
		Store string `yaml:"store"`
	} `yaml:"attempts"`
	Session struct {
		Autosave       string `yaml:"autosave"`
		AbandonTimeout string `yaml:"abandonTimeout"`
	} `yaml:"session"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// AttemptStore resolves the attempt backend, preferring the most durable one configured.
func (c Config) AttemptStore() string {
	switch c.Attempts.Store {
	case StoreMemory, StoreRedis, StorePostgres:
		return c.Attempts.Store
	}
	if c.Postgres.URL != "" {
		return StorePostgres
	}
	if c.Redis.Addr != "" {
		return StoreRedis
	}
	return StoreMemory
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
