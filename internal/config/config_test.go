package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got '%s'", cfg.Store.Driver)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Expected 30s cache TTL, got %s", cfg.Cache.TTL)
	}
	if cfg.Search.Debounce != 300*time.Millisecond {
		t.Errorf("Expected 300ms debounce, got %s", cfg.Search.Debounce)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected default addr, got '%s'", cfg.Server.Addr)
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskhub.yaml")
	content := `
server:
  addr: ":9000"
  cors_origins: ["https://app.example.com"]
store:
  driver: redis
  redis_addr: "cache:6379"
cache:
  ttl: 10s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKHUB_AUTH_JWT_SECRET", "from-env")
	t.Setenv("TASKHUB_SEARCH_DEBOUNCE", "150ms")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", ":8080", "")
	if err := flags.Parse([]string{"--addr", ":7000"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("flag should win, got addr '%s'", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "redis" || cfg.Store.RedisAddr != "cache:6379" {
		t.Errorf("store from file not applied: %+v", cfg.Store)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Cache.TTL != 10*time.Second {
		t.Errorf("ttl = %s", cfg.Cache.TTL)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("env secret not applied: '%s'", cfg.Auth.JWTSecret)
	}
	if cfg.Search.Debounce != 150*time.Millisecond {
		t.Errorf("debounce = %s", cfg.Search.Debounce)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
}

func TestUnchangedFlagDoesNotOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskhub.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9100\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", ":8080", "")

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9100" {
		t.Errorf("addr = '%s', want file value", cfg.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"missing sqlite path", func(c *Config) { c.Store.SQLitePath = "" }, "sqlite_path"},
		{"missing redis addr", func(c *Config) { c.Store.Driver = "redis"; c.Store.RedisAddr = "" }, "redis_addr"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"empty secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "taskhub.yaml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "ttl: 30s") {
		t.Errorf("durations should be human readable:\n%s", data)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load of written default failed: %v", err)
	}
	if cfg.Cache.TTL != 30*time.Second || cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("round trip lost durations: %+v %+v", cfg.Cache, cfg.Auth)
	}

	if err := WriteDefault(path, false); err == nil {
		t.Error("expected refusal to overwrite")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("forced overwrite failed: %v", err)
	}
}
