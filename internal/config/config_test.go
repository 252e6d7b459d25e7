package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
)

func TestLoad(t *testing.T) {
	content := `
version: "1"
server:
  port: 9090
  log_level: debug
remote:
  url: http://compliance.internal:5000
cache:
  backend: redis
  redis_url: redis://localhost:6379/0
webhooks:
  - url: https://hooks.example.com/controls
    events: [persist_failed, document_rejected]
presets:
  - name: High risk open
    risk: high
    status: in_progress
`
	dir := t.TempDir()
	path := filepath.Join(dir, "controldesk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Remote.URL != "http://compliance.internal:5000" {
		t.Errorf("remote url = %q", cfg.Remote.URL)
	}
	if cfg.Remote.TimeoutSeconds != 30 {
		t.Errorf("timeout default not applied: %d", cfg.Remote.TimeoutSeconds)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.TTLMinutes != 24*60 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if len(cfg.Webhooks) != 1 || len(cfg.Webhooks[0].Events) != 2 {
		t.Errorf("webhooks = %+v", cfg.Webhooks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}

	presets := cfg.BoardPresets()
	if len(presets) != 1 {
		t.Fatalf("presets = %d, want 1", len(presets))
	}
	want := control.FilterState{Status: control.StatusInProgress, Risk: control.RiskHigh}
	if presets[0].Filter != want {
		t.Errorf("preset filter = %+v, want %+v", presets[0].Filter, want)
	}
}

func TestLoad_ZeroValueDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controldesk.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8181\n  log_level: \"\"\ncache:\n  backend: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("cache backend = %q, want memory", cfg.Cache.Backend)
	}
}

func TestLoadOrDefaults_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoad_RejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.yaml")
	link := filepath.Join(dir, "controldesk.yaml")
	if err := Defaults().Save(target); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(link); err == nil {
		t.Error("symlinked config should be rejected")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controldesk.yaml")
	cfg := Defaults()
	cfg.Presets = append(cfg.Presets, PresetFromBoard(board.Preset{
		Name:   "Automated",
		Filter: control.FilterState{Type: control.TypeAutomatic},
	}))
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Presets) != 1 || loaded.Presets[0].Type != "Automatic" {
		t.Errorf("presets = %+v", loaded.Presets)
	}
	if loaded.Backend.Temperature != 0.7 {
		t.Errorf("temperature = %v", loaded.Backend.Temperature)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Backend.Model != "gpt-3.5-turbo" || cfg.Backend.MaxTokens != 1500 {
		t.Errorf("backend defaults = %+v", cfg.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config should not error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"backend port", func(c *Config) { c.Backend.Port = 70000 }},
		{"log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
		{"remote url scheme", func(c *Config) { c.Remote.URL = "ftp://example.com" }},
		{"remote url empty", func(c *Config) { c.Remote.URL = "" }},
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis url", func(c *Config) { c.Cache.Backend = "redis" }},
		{"severity", func(c *Config) { c.Scan.BlockSeverity = "low" }},
		{"webhook event", func(c *Config) {
			c.Webhooks = []Webhook{{URL: "https://example.com", Events: []string{"blocked"}}}
		}},
		{"webhook url", func(c *Config) { c.Webhooks = []Webhook{{}} }},
		{"preset value", func(c *Config) { c.Presets = []Preset{{Name: "x", Risk: "severe"}} }},
		{"preset name", func(c *Config) { c.Presets = []Preset{{Risk: "high"}} }},
		{"preset duplicate", func(c *Config) { c.Presets = []Preset{{Name: "A"}, {Name: "a"}} }},
		{"rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestServerConfig_Level(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (ServerConfig{LogLevel: in}).Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
