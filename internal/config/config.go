package config

import (
	"fmt"
	"time"
)

// Config is the server-level configuration loaded at startup. Per-turn
// Setting values travel in the request body (see internal/httpapi); this
// struct only configures the process itself: where it listens, how it logs,
// and how long it waits for in-flight turns to drain on shutdown.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		LogLevel:        "info",
		LogFormat:       "text",
		MetricsEnabled:  true,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the fields a misconfigured deployment would get wrong
// silently otherwise.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level %q is not one of debug/info/warn/error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format %q is not one of text/json", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown_timeout must be positive")
	}
	return nil
}

// Load reads a config file, applying defaults for unset fields, resolving
// $include directives and environment variable expansion along the way.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	loaded, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	merged := Default()
	if loaded.ListenAddr != "" {
		merged.ListenAddr = loaded.ListenAddr
	}
	if loaded.LogLevel != "" {
		merged.LogLevel = loaded.LogLevel
	}
	if loaded.LogFormat != "" {
		merged.LogFormat = loaded.LogFormat
	}
	if loaded.ShutdownTimeout != 0 {
		merged.ShutdownTimeout = loaded.ShutdownTimeout
	}
	if _, ok := raw["metrics_enabled"]; ok {
		merged.MetricsEnabled = loaded.MetricsEnabled
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}
