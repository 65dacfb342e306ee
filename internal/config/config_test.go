package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: "9090"
log:
  env: production
redis:
  addr: localhost:6379
  ttl: 5m
questions:
  shuffle: false
client:
  base_url: http://localhost:9090
  auto_advance: 0s
assistant:
  url: http://localhost:5005/chat
cors:
  allowed_origins: ["http://localhost:3000"]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Log.Env != "production" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ShuffleQuestions() {
		t.Fatalf("shuffle should be disabled")
	}
	if got := TTLDuration(cfg.Client.AutoAdvance, time.Second); got != 0 {
		t.Fatalf("explicit zero auto-advance should win, got %v", got)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Fatalf("expected one origin, got %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if !cfg.ShuffleQuestions() {
		t.Fatalf("shuffle defaults to on")
	}
	if got := TTLDuration(cfg.Redis.TTL, 10*time.Minute); got != 10*time.Minute {
		t.Fatalf("expected fallback ttl, got %v", got)
	}
}

func TestTTLDurationRejectsGarbage(t *testing.T) {
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}
