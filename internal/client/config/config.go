package config

import (
	"fmt"
	"net/url"
	"time"
)

// ConfigEnvVar names the environment variable consulted for the JSON config
// path when neither -c nor -config is given.
const ConfigEnvVar = "JOURNALSYNC_CLIENT_CONFIG"

// Config holds runtime settings for the CLI.
type Config struct {
	ServerURL      string
	DatabasePath   string
	LogFile        string
	LogLevel       string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "journalsync.db"
	c.LogFile = ""
	c.LogLevel = "info"
	c.RequestTimeout = 30 * time.Second
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server url %q", c.ServerURL)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones. Flags it does not know are ignored, so args
// may carry subcommands.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
