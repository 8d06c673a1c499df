package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INGEST_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/dota")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheQueue != "cache" || cfg.ParseQueue != "parse" || cfg.IngestQueue != "ingest" {
		t.Fatalf("queue defaults wrong: %+v", cfg)
	}
	if cfg.ParseTimeoutMS != 180000 {
		t.Fatalf("parse timeout default: got %d", cfg.ParseTimeoutMS)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("INGEST_CONFIG", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	body := "database_url: postgres://file/dota\nredis_url: redis://file:6379/0\nparse_queue: parse_prio\nparse_timeout_ms: 90000\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("INGEST_CONFIG", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://env:6379/0") // env wins over file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file/dota" {
		t.Fatalf("database url: got %q", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://env:6379/0" {
		t.Fatalf("redis url: got %q", cfg.RedisURL)
	}
	if cfg.ParseQueue != "parse_prio" || cfg.ParseTimeoutMS != 90000 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
}
