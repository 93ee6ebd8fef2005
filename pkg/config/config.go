// Package config provides the server daemon's configuration file support.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the anchord server configuration.
type Config struct {
	// Root is the data directory holding repositories, users, and the
	// refresh token store.
	Root string `yaml:"root"`
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// Secret signs access tokens. Must be at least 16 bytes.
	Secret string `yaml:"secret"`
	// AdminUsername is the single administrative account.
	AdminUsername string `yaml:"admin_username"`
	// GuestEnabled allows the read-only guest/guest login.
	GuestEnabled bool `yaml:"guest_enabled"`
	// RateLimit is the per-IP request ceiling per minute.
	RateLimit int `yaml:"rate_limit"`
	Logging   LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures daemon logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Root:          "/var/lib/anchor",
		Listen:        ":8001",
		AdminUsername: "admin",
		GuestEnabled:  false,
		RateLimit:     100,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Secret != "" && len(c.Secret) < 16 {
		return fmt.Errorf("secret must be at least 16 characters")
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 100
	}
	return nil
}

// Save writes configuration to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
