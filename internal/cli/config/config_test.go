package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conduit-lang/objectserver/internal/orm/transaction"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoad(t *testing.T) {
	// Test loading with no config file (should use defaults)
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected default driver 'sqlite3', got %s", cfg.Database.Driver)
	}
	if cfg.Database.URL != "objectserver.db" {
		t.Errorf("expected default url 'objectserver.db', got %s", cfg.Database.URL)
	}
	if cfg.IsolationLevel() != transaction.Serializable {
		t.Errorf("expected serializable isolation, got %s", cfg.IsolationLevel())
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("expected default cache ttl 30s, got %s", cfg.Cache.TTL)
	}
	if retry := cfg.RetryConfig(); retry == nil || retry.MaxRetries != transaction.DefaultMaxRetries {
		t.Errorf("expected default retry config, got %+v", retry)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_URL", "")

	configContent := `
database:
  driver: pgx
  url: postgres://localhost/objects
  isolation: read_committed
  max_open_conns: 4
log:
  level: debug
  development: true
cache:
  backend: redis
  ttl: 1m
  redis_addr: cache:6379
metrics:
  enabled: true
  textfile: /var/lib/node_exporter/objectserver.prom
transaction:
  max_retries: 0
  timeout: 5s
`
	if err := os.WriteFile("objectserver.yaml", []byte(configContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Database.Driver != "pgx" {
		t.Errorf("expected driver 'pgx', got %s", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 4 {
		t.Errorf("expected 4 connections, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.IsolationLevel() != transaction.ReadCommitted {
		t.Errorf("expected read committed isolation, got %s", cfg.IsolationLevel())
	}
	if !cfg.Log.Development || cfg.Log.Level != "debug" {
		t.Errorf("expected development debug logging, got %+v", cfg.Log)
	}
	cc := cfg.CacheConfig()
	if cc.Backend != "redis" || cc.RedisAddr != "cache:6379" || cc.DefaultTTL != time.Minute {
		t.Errorf("unexpected cache config %+v", cc)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Textfile != "/var/lib/node_exporter/objectserver.prom" {
		t.Errorf("unexpected metrics config %+v", cfg.Metrics)
	}
	if cfg.RetryConfig() != nil {
		t.Error("expected retries to be disabled")
	}
	if cfg.Transaction.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Transaction.Timeout)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}

	path := filepath.Join(dir, "custom.yaml")
	os.WriteFile(path, []byte("database:\n  url: custom.db\n"), 0644)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Database.URL != "custom.db" {
		t.Errorf("expected url 'custom.db', got %s", cfg.Database.URL)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OBJECTSERVER_LOG_LEVEL", "warn")
	t.Setenv("OBJECTSERVER_CACHE_BACKEND", "none")
	t.Setenv("DATABASE_URL", "env.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level 'warn', got %s", cfg.Log.Level)
	}
	if cfg.Cache.Backend != CacheDisabled {
		t.Errorf("expected cache backend 'none', got %s", cfg.Cache.Backend)
	}
	if cfg.Database.URL != "env.db" {
		t.Errorf("expected url 'env.db', got %s", cfg.Database.URL)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite3", URL: "x.db", Isolation: "serializable"},
			Log:      LogConfig{Level: "info"},
			Cache:    CacheConfig{Backend: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"empty url", func(c *Config) { c.Database.URL = "" }, true},
		{"bad isolation", func(c *Config) { c.Database.Isolation = "snapshot" }, true},
		{"negative pool", func(c *Config) { c.Database.MaxOpenConns = -1 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, true},
		{"negative timeout", func(c *Config) { c.Transaction.Timeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
