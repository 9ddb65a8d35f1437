// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8640"
	ListenAddr string `toml:"listen_addr"`

	// Store configuration.
	Store StoreConfig `toml:"store"`

	// Invites configuration.
	Invites InvitesConfig `toml:"invites"`

	// Security configuration.
	Security SecurityConfig `toml:"security"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is one of: sqlite, memory.
	Driver string `toml:"driver"`

	// DataDir is where the sqlite driver keeps its database file.
	DataDir string `toml:"data_dir"`
}

// InvitesConfig holds invite issuance settings.
type InvitesConfig struct {
	// TTLHours bounds invite validity. Zero means invites never expire.
	TTLHours int `toml:"ttl_hours"`
}

// SecurityConfig holds password hashing settings.
type SecurityConfig struct {
	// BcryptCost for folder and account passwords. Zero selects the
	// bcrypt default.
	BcryptCost int `toml:"bcrypt_cost"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `toml:"level"`
}

// InviteTTL returns the configured invite lifetime as a duration.
func (c *Config) InviteTTL() time.Duration {
	return time.Duration(c.Invites.TTLHours) * time.Hour
}

// DevConfig returns a Config with sensible defaults for local
// development: in-memory storage and verbose logging.
func DevConfig() *Config {
	return &Config{
		Mode:       string(ModeDev),
		ListenAddr: ":8640",
		Store: StoreConfig{
			Driver: "memory",
		},
		Invites: InvitesConfig{
			TTLHours: 7 * 24,
		},
		Logging: LoggingConfig{
			Level: "debug",
		},
	}
}

// StrictConfig returns the defaults for strict (production) mode:
// durable storage and quieter logs.
func StrictConfig() *Config {
	return &Config{
		Mode:       string(ModeStrict),
		ListenAddr: ":8640",
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: "./data",
		},
		Invites: InvitesConfig{
			TTLHours: 7 * 24,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if _, err := ParseMode(c.Mode); err != nil {
		return err
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store driver %q: must be one of sqlite, memory", c.Store.Driver)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	if c.Invites.TTLHours < 0 {
		return fmt.Errorf("invites.ttl_hours must not be negative")
	}
	return nil
}
