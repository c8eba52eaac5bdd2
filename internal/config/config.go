// Package config loads the ronkey server configuration.
//
// Configuration is a JSON file merged over DefaultConfig, followed by
// RONKEY_* environment overrides. A missing file is not an error.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Environment variables that override file values
const (
	EnvAddr     = "RONKEY_ADDR"
	EnvLogLevel = "RONKEY_LOG_LEVEL"
	EnvLogPath  = "RONKEY_LOG_PATH"
)

const (
	defaultAddr            = "127.0.0.1:8000"
	defaultGreeting        = "Hello, world! :)\n\n\n---\n\n\nBy jgcardelus"
	defaultMaxMessageBytes = 64 * 1024
)

// Config represents server configuration
type Config struct {
	Addr     string `json:"addr"`
	Greeting string `json:"greeting"`
	LogLevel string `json:"log_level"` // debug, info, warn, error, none
	LogPath  string `json:"log_path"`  // "-" for stderr, "" to disable

	// MaxMessageBytes caps the size of one inbound frame. Larger frames are
	// a transport error and close the connection.
	MaxMessageBytes int64 `json:"max_message_bytes"`

	// Keepalive. PingIntervalSeconds of 0 disables pings and the idle read
	// deadline altogether.
	PingIntervalSeconds int `json:"ping_interval_seconds"`
	PongTimeoutSeconds  int `json:"pong_timeout_seconds"`
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`

	// EvalTimeoutSeconds bounds one evaluation. 0 means unbounded.
	EvalTimeoutSeconds int `json:"eval_timeout_seconds"`

	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:                   defaultAddr,
		Greeting:               defaultGreeting,
		LogLevel:               "info",
		LogPath:                "-",
		MaxMessageBytes:        defaultMaxMessageBytes,
		PingIntervalSeconds:    54,
		PongTimeoutSeconds:     60,
		WriteTimeoutSeconds:    10,
		EvalTimeoutSeconds:     0,
		ShutdownTimeoutSeconds: 5,
	}
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "ronkey")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "ronkey")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "ronkey")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "ronkey")
	}
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// Load loads configuration from path, applies environment overrides and
// validates the result
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Unmarshal into default config (overrides only provided fields)
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.ApplyEnv()

	if cfg.Greeting == "" {
		cfg.Greeting = defaultGreeting
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RONKEY_* environment variables
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAddr)); v != "" {
		c.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvLogPath); ok {
		c.LogPath = strings.TrimSpace(v)
	}
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_message_bytes must be positive, got %d", c.MaxMessageBytes))
	}
	if c.PingIntervalSeconds < 0 || c.PongTimeoutSeconds < 0 || c.WriteTimeoutSeconds < 0 ||
		c.EvalTimeoutSeconds < 0 || c.ShutdownTimeoutSeconds < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.PingIntervalSeconds > 0 && c.PingIntervalSeconds >= c.PongTimeoutSeconds {
		errs = append(errs, fmt.Errorf("ping_interval_seconds (%d) must be less than pong_timeout_seconds (%d)",
			c.PingIntervalSeconds, c.PongTimeoutSeconds))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the configuration as indented JSON
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// PingInterval returns the keepalive ping period, 0 when disabled
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// PongTimeout returns how long a connection may stay silent
func (c *Config) PongTimeout() time.Duration {
	return time.Duration(c.PongTimeoutSeconds) * time.Second
}

// WriteTimeout returns the deadline for one outbound frame
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// EvalTimeout returns the evaluation budget, 0 when unbounded
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long Stop waits for HTTP handlers
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
