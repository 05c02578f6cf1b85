package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/vibee/vibee/internal/logging"
)

// Environment overrides. They win over config.toml.
const (
	EnvServerURL = "VIBEE_SERVER_URL"
	EnvWSURL     = "VIBEE_WS_URL"
	EnvProfile   = "VIBEE_PROFILE"
	EnvLogLevel  = "VIBEE_LOG_LEVEL"
)

// Config represents the global ~/.vibee/config.toml.
type Config struct {
	DefaultProfile string    `toml:"default_profile"`
	ServerURL      string    `toml:"server_url"`
	WSURL          string    `toml:"ws_url"`
	PageSize       int       `toml:"page_size"`
	ConnectTimeout Duration  `toml:"connect_timeout"`
	Reconnect      Reconnect `toml:"reconnect"`
	MetricsAddr    string    `toml:"metrics_addr"`
	LogLevel       string    `toml:"log_level"`
}

// Reconnect configures the live channel's backoff after a transport drop.
type Reconnect struct {
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
	MaxAttempts int      `toml:"max_attempts"`
}

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ServerURL:      "http://localhost:5000/api",
		WSURL:          "ws://localhost:5000/ws",
		PageSize:       50,
		ConnectTimeout: Duration{10 * time.Second},
		Reconnect: Reconnect{
			BaseDelay:   Duration{500 * time.Millisecond},
			MaxDelay:    Duration{30 * time.Second},
			MaxAttempts: 10,
		},
	}
}

// Load reads config from the given path on top of Default. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvServerURL); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv(EnvWSURL); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the values the daemon depends on.
func (c *Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.ConnectTimeout.Duration <= 0 {
		return fmt.Errorf("connect_timeout must be positive")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	if c.Reconnect.BaseDelay.Duration <= 0 || c.Reconnect.MaxDelay.Duration < c.Reconnect.BaseDelay.Duration {
		return fmt.Errorf("reconnect delays must satisfy 0 < base_delay <= max_delay")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := checkURL("server_url", c.ServerURL, "http", "https"); err != nil {
		return err
	}
	return checkURL("ws_url", c.WSURL, "ws", "wss")
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q: want a %v URL with a host", field, raw, schemes)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
