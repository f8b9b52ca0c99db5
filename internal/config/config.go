// ABOUTME: Gateway configuration loading and validation
// ABOUTME: YAML file overlaid on defaults, then environment overrides, then per-section validation
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvListenAddr  = "BEATGATE_LISTEN_ADDR"
	EnvUpstreamURL = "BEATGATE_UPSTREAM_URL"
	EnvLogLevel    = "BEATGATE_LOG_LEVEL"
)

// Config represents the complete gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Window   WindowConfig   `yaml:"window"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig contains the client-facing listener configuration
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	Path         string        `yaml:"path"`
	Name         string        `yaml:"name"`
	EnableMDNS   bool          `yaml:"enable_mdns"`
	UseTUI       bool          `yaml:"use_tui"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// UpstreamConfig contains the analysis server connection settings
type UpstreamConfig struct {
	URL         string        `yaml:"url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	ReadLimit   int64         `yaml:"read_limit"` // bytes per message
}

// WindowConfig contains sliding-window and channel sizing
type WindowConfig struct {
	WindowSize     int `yaml:"window_size"`     // chunks
	SlideSize      int `yaml:"slide_size"`      // chunks
	PCMCapacity    int `yaml:"pcm_capacity"`    // chunks
	WindowCapacity int `yaml:"window_capacity"` // windows
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
	File   string `yaml:"file"`   // empty means stderr
}

// MetricsConfig contains Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   ":7000",
			Path:         "/",
			Name:         "beatgate",
			EnableMDNS:   false,
			UseTUI:       false,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			URL:         "ws://localhost:5000",
			DialTimeout: 5 * time.Second,
			ReadLimit:   1 << 20,
		},
		Window: WindowConfig{
			WindowSize:     200,
			SlideSize:      100,
			PCMCapacity:    1000,
			WindowCapacity: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
// Environment overrides are applied and the result is validated.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays non-empty environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvUpstreamURL); v != "" {
		c.Upstream.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream config: %w", err)
	}
	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("window config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if s.Path == "" || s.Path[0] != '/' {
		return fmt.Errorf("path must start with /, got %q", s.Path)
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %s", s.WriteTimeout)
	}
	if s.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive, got %s", s.PingInterval)
	}
	return nil
}

// Validate validates upstream configuration
func (u *UpstreamConfig) Validate() error {
	parsed, err := url.Parse(u.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", u.URL, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url %q has no host", u.URL)
	}
	if u.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be positive, got %s", u.DialTimeout)
	}
	if u.ReadLimit < 1 {
		return fmt.Errorf("read_limit must be at least 1, got %d", u.ReadLimit)
	}
	return nil
}

// Validate validates window configuration
func (w *WindowConfig) Validate() error {
	if w.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", w.WindowSize)
	}
	if w.SlideSize < 1 || w.SlideSize > w.WindowSize {
		return fmt.Errorf("slide_size must be between 1 and window_size (%d), got %d", w.WindowSize, w.SlideSize)
	}
	if w.PCMCapacity < 1 {
		return fmt.Errorf("pcm_capacity must be at least 1, got %d", w.PCMCapacity)
	}
	if w.WindowCapacity < 1 {
		return fmt.Errorf("window_capacity must be at least 1, got %d", w.WindowCapacity)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("format must be json or console, got %q", l.Format)
	}
	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && (m.Path == "" || m.Path[0] != '/') {
		return fmt.Errorf("path must start with / when metrics are enabled, got %q", m.Path)
	}
	return nil
}
