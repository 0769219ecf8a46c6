package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.Server.Web.Port = 9999
	cfg.Cache.Backend = "memory"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Server.Web.Port != 9999 {
		t.Fatalf("expected port 9999, got %d", loaded.Server.Web.Port)
	}
}

func TestLoadAppliesDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"general": {"logLevel": "debug"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Fatalf("expected overridden log level, got %q", cfg.General.LogLevel)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("expected default cache backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Invoke.TimeoutSeconds != 60 {
		t.Fatalf("expected default invoke timeout, got %d", cfg.Invoke.TimeoutSeconds)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PRIZM_TEST_KEY", "secret123")

	got := ExpandEnvVars(`{"apiKey": "${PRIZM_TEST_KEY}"}`)
	if !strings.Contains(got, "secret123") {
		t.Fatalf("env var not expanded: %s", got)
	}

	got = ExpandEnvVars(`${PRIZM_UNSET_VAR:-fallback}`)
	if got != "fallback" {
		t.Fatalf("expected default value, got %q", got)
	}

	got = ExpandEnvVars(`${PRIZM_UNSET_VAR}`)
	if got != "${PRIZM_UNSET_VAR}" {
		t.Fatalf("unset var without default must stay literal, got %q", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis"; c.Cache.RedisAddr = "" }, "redisAddr"},
		{"bad port", func(c *Config) { c.Server.Web.Port = 70000 }, "server.web.port"},
		{"zero iterations", func(c *Config) { c.General.MaxIterations = 0 }, "maxIterations"},
		{"cron without target", func(c *Config) {
			c.Cron.Tasks = []CronTask{{ID: "t1", Schedule: "* * * * *"}}
		}, "target"},
		{"enabled provider without base", func(c *Config) {
			c.Providers["broken"] = ProviderConfig{Enabled: true}
		}, "apiBase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestGetSetByPath(t *testing.T) {
	cfg := Defaults()

	if err := SetByPath(cfg, "cache.defaultTtlSeconds", "120"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Cache.DefaultTTLSeconds != 120 {
		t.Fatalf("expected 120, got %d", cfg.Cache.DefaultTTLSeconds)
	}

	v, err := GetByPath(cfg, "cache.defaultTtlSeconds")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n, ok := v.(float64); !ok || n != 120 {
		t.Fatalf("expected 120, got %#v", v)
	}

	if _, err := GetByPath(cfg, "no.such.path"); err == nil {
		t.Fatal("expected unknown path to fail")
	}
}

func TestSanitizeMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Providers["openai"] = ProviderConfig{
		Enabled: true,
		APIBase: "https://api.openai.com/v1",
		APIKey:  "sk-abcdef1234567890",
	}
	cfg.Cache.RedisPassword = "hunter2"

	safe := Sanitize(cfg)
	if strings.Contains(safe.Providers["openai"].APIKey, "abcdef123456") {
		t.Fatalf("API key not masked: %q", safe.Providers["openai"].APIKey)
	}
	if safe.Cache.RedisPassword != "***" {
		t.Fatalf("redis password not masked: %q", safe.Cache.RedisPassword)
	}
	// Original untouched.
	if cfg.Providers["openai"].APIKey != "sk-abcdef1234567890" {
		t.Fatal("sanitize must not mutate the original config")
	}
}
