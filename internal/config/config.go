// Package config loads the TOML configuration file, applying defaults,
// validation, and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Discord DiscordConfig `toml:"discord"`
	Feeds   FeedsConfig   `toml:"feeds"`
	Notify  NotifyConfig  `toml:"notify"`
}

// ServerConfig holds HTTP server settings for the health and admin API.
type ServerConfig struct {
	Port int `toml:"port"`
}

// DiscordConfig holds delivery settings.
type DiscordConfig struct {
	Token string `toml:"token"`
}

// FeedsConfig holds shelf feed polling settings.
type FeedsConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
}

// NotifyConfig holds notification composition settings.
type NotifyConfig struct {
	// MassUpdateThreshold is the number of active updates above which one
	// consolidated batch is sent instead of per-book messages.
	MassUpdateThreshold int `toml:"mass_update_threshold"`

	// MaxSectionLength bounds the rendered body of one batch section.
	MaxSectionLength int `toml:"max_section_length"`
}

const defaultConfigContent = `[server]
port = 8080

[discord]
token = ""                    # Bot token (or set DISCORD_TOKEN env var)

[feeds]
interval_minutes = 15         # How often shelf feeds are polled

[notify]
mass_update_threshold = 2     # More active updates than this collapse into one batch
max_section_length = 1024     # Discord embed field limit
`

// Load reads and parses the TOML config from the given path. If the file
// does not exist, it creates a default config file at that path. Environment
// variables override values from the file with highest priority.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		slog.Info("created default config file", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Validate explicitly-set values before applying defaults, so that
	// explicitly writing "port = 0" is an error rather than silently
	// being replaced with the default.
	if err := validateExplicit(&cfg, md); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// createDefault writes the default config content to the given path,
// creating any parent directories as needed.
func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// validateExplicit checks values that were explicitly set in the TOML file.
// This catches cases like "port = 0" which would otherwise be silently
// replaced by the default value.
func validateExplicit(cfg *Config, md toml.MetaData) error {
	if md.IsDefined("server", "port") {
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
		}
	}
	if md.IsDefined("feeds", "interval_minutes") {
		if cfg.Feeds.IntervalMinutes < 1 {
			return fmt.Errorf("invalid feeds.interval_minutes %d: must be >= 1", cfg.Feeds.IntervalMinutes)
		}
	}
	if md.IsDefined("notify", "mass_update_threshold") {
		if cfg.Notify.MassUpdateThreshold < 1 {
			return fmt.Errorf("invalid notify.mass_update_threshold %d: must be >= 1", cfg.Notify.MassUpdateThreshold)
		}
	}
	if md.IsDefined("notify", "max_section_length") {
		if cfg.Notify.MaxSectionLength < 1 {
			return fmt.Errorf("invalid notify.max_section_length %d: must be >= 1", cfg.Notify.MaxSectionLength)
		}
	}
	return nil
}

// applyDefaults sets default values for any zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Feeds.IntervalMinutes == 0 {
		cfg.Feeds.IntervalMinutes = 15
	}
	if cfg.Notify.MassUpdateThreshold == 0 {
		cfg.Notify.MassUpdateThreshold = 2
	}
	if cfg.Notify.MaxSectionLength == 0 {
		cfg.Notify.MaxSectionLength = 1024
	}
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables take highest priority over config file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
	}

	if cfg.Feeds.IntervalMinutes < 1 {
		return fmt.Errorf("invalid feeds.interval_minutes %d: must be >= 1", cfg.Feeds.IntervalMinutes)
	}

	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty: set it in the config file or via DISCORD_TOKEN environment variable")
	}

	return nil
}
