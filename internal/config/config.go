package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/safefile"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "controldesk.yaml"

// maxConfigBytes caps the config file size.
const maxConfigBytes = 1 << 20

// Config is the top-level controldesk configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Remote    RemoteConfig    `yaml:"remote"`
	Journal   JournalConfig   `yaml:"journal"`
	Cache     CacheConfig     `yaml:"cache"`
	Scan      ScanConfig      `yaml:"scan"`
	Webhooks  []Webhook       `yaml:"webhooks"`
	Presets   []Preset        `yaml:"presets,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Backend   BackendConfig   `yaml:"backend"`
}

// ServerConfig holds dashboard server settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	Bind      string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel  string `yaml:"log_level"`
	RateLimit int    `yaml:"rate_limit"` // generation requests per client per minute, 0 = unlimited
}

// RemoteConfig points at the Remote Control Service.
type RemoteConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	LoadOnStart    bool   `yaml:"load_on_start"`
}

// JournalConfig configures the activity journal.
type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"` // auto-purge entries older than N days (0 = keep forever)
}

// CacheConfig selects the document cache backend.
type CacheConfig struct {
	Backend    string `yaml:"backend"` // memory, redis, none
	RedisURL   string `yaml:"redis_url,omitempty"`
	Prefix     string `yaml:"prefix,omitempty"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// ScanConfig configures document scanning before save.
type ScanConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BlockSeverity  string `yaml:"block_severity"` // critical, high, medium
	CustomRulesDir string `yaml:"custom_rules_dir,omitempty"`
}

// Webhook defines an outgoing notification endpoint.
type Webhook struct {
	URL      string   `yaml:"url"`
	Events   []string `yaml:"events"`             // board event types; empty = all
	Template string   `yaml:"template,omitempty"` // Slack-style text with {{TAG}} placeholders
}

// Preset is a named filter as written in the config file.
type Preset struct {
	Name      string `yaml:"name"`
	Status    string `yaml:"status,omitempty"`
	Risk      string `yaml:"risk,omitempty"`
	Type      string `yaml:"type,omitempty"`
	Search    string `yaml:"search,omitempty"`
	Framework string `yaml:"framework,omitempty"`
}

// TelemetryConfig toggles metrics and tracing.
type TelemetryConfig struct {
	Metrics     bool   `yaml:"metrics"`
	Tracing     bool   `yaml:"tracing"` // spans to stdout
	ServiceName string `yaml:"service_name"`
}

// BackendConfig configures the reference Remote Control Service.
type BackendConfig struct {
	Port        int     `yaml:"port"`
	Bind        string  `yaml:"bind"`
	Database    string  `yaml:"database"` // sqlite path or postgres:// URL
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// Load reads and parses a controldesk config file.
func Load(path string) (*Config, error) {
	data, err := safefile.ReadFileMax(path, maxConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	d := Defaults()
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = d.Server.LogLevel
	}
	if cfg.Remote.TimeoutSeconds == 0 {
		cfg.Remote.TimeoutSeconds = d.Remote.TimeoutSeconds
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = d.Cache.Backend
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = d.Cache.TTLMinutes
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = d.Telemetry.ServiceName
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = d.Backend.Model
	}
	if cfg.Backend.MaxTokens == 0 {
		cfg.Backend.MaxTokens = d.Backend.MaxTokens
	}

	return cfg, nil
}

// LoadOrDefaults loads path, falling back to Defaults when the file does
// not exist.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:      8080,
			Bind:      "127.0.0.1",
			LogLevel:  "info",
			RateLimit: 30,
		},
		Remote: RemoteConfig{
			URL:            "http://127.0.0.1:5000",
			TimeoutSeconds: 30,
			LoadOnStart:    true,
		},
		Journal: JournalConfig{
			Path:          "controldesk-journal.db",
			RetentionDays: 90,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			Prefix:     "controldesk",
			TTLMinutes: 24 * 60,
		},
		Scan: ScanConfig{
			Enabled:       true,
			BlockSeverity: "high",
		},
		Telemetry: TelemetryConfig{
			Metrics:     true,
			ServiceName: "controldesk",
		},
		Backend: BackendConfig{
			Port:        5000,
			Bind:        "127.0.0.1",
			Database:    "controldesk-backend.db",
			APIKeyEnv:   "OPENAI_API_KEY",
			Model:       "gpt-3.5-turbo",
			MaxTokens:   1500,
			Temperature: 0.7,
		},
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Backend.Port < 1 || c.Backend.Port > 65535 {
		return fmt.Errorf("invalid backend port: %d", c.Backend.Port)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.Server.LogLevel)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}

	u, err := url.Parse(c.Remote.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.url %q must be an http(s) URL", c.Remote.URL)
	}
	if c.Remote.TimeoutSeconds < 0 {
		return fmt.Errorf("remote.timeout_seconds must not be negative")
	}

	switch c.Cache.Backend {
	case "memory", "none", "":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when backend is redis")
		}
	default:
		return fmt.Errorf("invalid cache backend %q", c.Cache.Backend)
	}

	switch strings.ToLower(c.Scan.BlockSeverity) {
	case "", "critical", "high", "medium":
	default:
		return fmt.Errorf("invalid scan.block_severity %q", c.Scan.BlockSeverity)
	}

	known := make(map[string]bool, len(board.EventTypes))
	for _, et := range board.EventTypes {
		known[string(et)] = true
	}
	for _, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook url is required")
		}
		for _, ev := range wh.Events {
			if !known[ev] {
				return fmt.Errorf("webhook %s: unknown event %q", wh.URL, ev)
			}
		}
	}

	seen := map[string]bool{}
	for _, p := range c.Presets {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return fmt.Errorf("preset name is required")
		}
		if seen[name] {
			return fmt.Errorf("duplicate preset %q", p.Name)
		}
		seen[name] = true
		if _, err := p.Filter(); err != nil {
			return fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return nil
}

// Level maps log_level to a slog level. Unknown values mean info.
func (s ServerConfig) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Filter parses the preset into a filter state.
func (p Preset) Filter() (control.FilterState, error) {
	f, err := control.ParseFilter(p.Status, p.Risk, p.Type, p.Search)
	if err != nil {
		return control.FilterState{}, err
	}
	f.Framework = strings.TrimSpace(p.Framework)
	return f, nil
}

// BoardPresets converts the configured presets. Invalid presets are
// skipped; Validate reports them.
func (c *Config) BoardPresets() []board.Preset {
	out := make([]board.Preset, 0, len(c.Presets))
	for _, p := range c.Presets {
		f, err := p.Filter()
		if err != nil {
			continue
		}
		out = append(out, board.Preset{Name: strings.TrimSpace(p.Name), Filter: f})
	}
	return out
}

// PresetFromBoard converts a board preset to its config form.
func PresetFromBoard(p board.Preset) Preset {
	return Preset{
		Name:      p.Name,
		Status:    string(p.Filter.Status),
		Risk:      string(p.Filter.Risk),
		Type:      string(p.Filter.Type),
		Search:    p.Filter.Search,
		Framework: p.Filter.Framework,
	}
}
