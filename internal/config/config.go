// Package config loads the discussd server configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/codefionn/discussd/internal/consts"
)

const appName = "discussd"

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Environment overrides, applied after the config file.
const (
	EnvListenAddr = "DISCUSSD_LISTEN_ADDR"
	EnvHTTPAddr   = "DISCUSSD_HTTP_ADDR"
	EnvDBPath     = "DISCUSSD_DB_PATH"
	EnvLogLevel   = "DISCUSSD_LOG_LEVEL"
	EnvLogPath    = "DISCUSSD_LOG_PATH"
)

// StoreConfig selects and tunes the discussion store.
type StoreConfig struct {
	Driver             string `json:"driver"` // "sqlite" or "memory"
	Path               string `json:"path"`
	PollIntervalMillis int    `json:"poll_interval_millis"`
}

// Config is the server configuration.
type Config struct {
	ListenAddr          string      `json:"listen_addr"`
	HTTPAddr            string      `json:"http_addr"` // empty disables the admin/WebSocket listener
	MaxConnections      int         `json:"max_connections"`
	MaxLineBytes        int         `json:"max_line_bytes"`
	IdleTimeoutSeconds  int         `json:"idle_timeout_seconds"` // 0 disables the read deadline
	WriteTimeoutSeconds int         `json:"write_timeout_seconds"`
	SendBuffer          int         `json:"send_buffer"`
	HistorySize         int         `json:"history_size"`
	Store               StoreConfig `json:"store"`
	LogLevel            string      `json:"log_level"` // debug, info, warn, error, none
	LogPath             string      `json:"log_path"`  // empty logs to stderr
	PIDFile             string      `json:"pid_file"`
	EnablePprof         bool        `json:"enable_pprof"` // mounts /debug/pprof on the admin listener
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          "0.0.0.0:8989",
		HTTPAddr:            "127.0.0.1:8990",
		MaxConnections:      consts.DefaultMaxConnections,
		MaxLineBytes:        consts.DefaultMaxLineBytes,
		WriteTimeoutSeconds: int(consts.Timeout10Seconds / time.Second),
		SendBuffer:          consts.DefaultSendBuffer,
		HistorySize:         consts.DefaultHistorySize,
		Store: StoreConfig{
			Driver:             DriverSQLite,
			Path:               filepath.Join(defaultStateDir(), appName+".db"),
			PollIntervalMillis: int(consts.DefaultPollInterval / time.Millisecond),
		},
		LogLevel: "info",
	}
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// Load reads path over DefaultConfig. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Store.Driver == "" {
		config.Store.Driver = DriverSQLite
	}
	if config.Store.Path == "" {
		config.Store.Path = filepath.Join(defaultStateDir(), appName+".db")
	}
	return config, nil
}

// ApplyEnv overrides fields from the process environment.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvListenAddr); ok {
		c.ListenAddr = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok {
		c.HTTPAddr = v
	}
	if v, ok := lookup(EnvDBPath); ok {
		c.Store.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvLogPath); ok {
		c.LogPath = v
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxLineBytes <= 0 {
		return fmt.Errorf("max_line_bytes must be positive, got %d", c.MaxLineBytes)
	}
	if c.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("idle_timeout_seconds must not be negative, got %d", c.IdleTimeoutSeconds)
	}
	if c.WriteTimeoutSeconds <= 0 {
		return fmt.Errorf("write_timeout_seconds must be positive, got %d", c.WriteTimeoutSeconds)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size must not be negative, got %d", c.HistorySize)
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
		if c.Store.PollIntervalMillis <= 0 {
			return fmt.Errorf("store.poll_interval_millis must be positive, got %d", c.Store.PollIntervalMillis)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// IdleTimeout returns the read deadline window, zero when disabled.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// WriteTimeout returns the per-write deadline.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// PollInterval returns the change stream poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Store.PollIntervalMillis) * time.Millisecond
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
