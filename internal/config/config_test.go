package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Redis.TTL != 5*time.Minute {
		t.Errorf("redis.ttl = %v, want 5m", cfg.Redis.TTL)
	}
	if cfg.Search.DefaultLimit != 20 || cfg.Search.MaxLimit != 100 {
		t.Errorf("search limits = %d/%d, want 20/100", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Database.URL != "" {
		t.Errorf("database.url default should be empty, got %q", cfg.Database.URL)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  addr: ":9090"
database:
  url: "postgres://localhost/agrogram"
redis:
  addr: "localhost:6379"
  ttl: "1m"
logging:
  level: "debug"
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server.addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Database.URL != "postgres://localhost/agrogram" {
		t.Errorf("database.url = %q", cfg.Database.URL)
	}
	if cfg.Redis.TTL != time.Minute {
		t.Errorf("redis.ttl = %v, want 1m", cfg.Redis.TTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	// Unset values keep defaults.
	if cfg.Search.MaxLimit != 100 {
		t.Errorf("search.max_limit = %d, want default 100", cfg.Search.MaxLimit)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AGROGRAM_SERVER_ADDR", ":7070")
	t.Setenv("AGROGRAM_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("server.addr = %q, want env override :7070", cfg.Server.Addr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("logging.level = %q, want warn", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"tiny request timeout", func(c *Config) { c.Server.RequestTimeout = time.Millisecond }},
		{"tiny redis ttl", func(c *Config) { c.Redis.Addr = "localhost:6379"; c.Redis.TTL = 0 }},
		{"zero default limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxLimit = 5 }},
		{"horizon out of range", func(c *Config) { c.Prediction.DefaultHorizonDays = 500 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
