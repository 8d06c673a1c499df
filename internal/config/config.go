package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	DatabaseURL string
	RedisURL    string

	CacheQueue  string
	ParseQueue  string
	IngestQueue string

	ParseTimeoutMS int

	DBMaxOpenConns int
	DBMaxIdleConns int
}

// fileConfig is the optional YAML overlay; env vars win over it.
type fileConfig struct {
	DatabaseURL    string `yaml:"database_url"`
	RedisURL       string `yaml:"redis_url"`
	CacheQueue     string `yaml:"cache_queue"`
	ParseQueue     string `yaml:"parse_queue"`
	IngestQueue    string `yaml:"ingest_queue"`
	ParseTimeoutMS int    `yaml:"parse_timeout_ms"`
	DBMaxOpenConns int    `yaml:"db_max_open_conns"`
	DBMaxIdleConns int    `yaml:"db_max_idle_conns"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		CacheQueue:     "cache",
		ParseQueue:     "parse",
		IngestQueue:    "ingest",
		ParseTimeoutMS: 180000,
		DBMaxOpenConns: 16,
		DBMaxIdleConns: 8,
	}

	if path := strings.TrimSpace(os.Getenv("INGEST_CONFIG")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CACHE_QUEUE")); v != "" {
		cfg.CacheQueue = v
	}
	if v := strings.TrimSpace(os.Getenv("PARSE_QUEUE")); v != "" {
		cfg.ParseQueue = v
	}
	if v := strings.TrimSpace(os.Getenv("INGEST_QUEUE")); v != "" {
		cfg.IngestQueue = v
	}
	if v := strings.TrimSpace(os.Getenv("PARSE_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ParseTimeoutMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DB_MAX_OPEN_CONNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DB_MAX_IDLE_CONNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

func applyFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.RedisURL != "" {
		cfg.RedisURL = fc.RedisURL
	}
	if fc.CacheQueue != "" {
		cfg.CacheQueue = fc.CacheQueue
	}
	if fc.ParseQueue != "" {
		cfg.ParseQueue = fc.ParseQueue
	}
	if fc.IngestQueue != "" {
		cfg.IngestQueue = fc.IngestQueue
	}
	if fc.ParseTimeoutMS > 0 {
		cfg.ParseTimeoutMS = fc.ParseTimeoutMS
	}
	if fc.DBMaxOpenConns > 0 {
		cfg.DBMaxOpenConns = fc.DBMaxOpenConns
	}
	if fc.DBMaxIdleConns > 0 {
		cfg.DBMaxIdleConns = fc.DBMaxIdleConns
	}
	return nil
}
