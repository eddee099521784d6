// Package config provides configuration loading and management for the diagnostics daemon.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from a file path
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// If path is empty, search for default config files
	if path == "" {
		for _, p := range ConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	// If no config file found, warn and return defaults
	if path == "" {
		log.Printf("Warning: No configuration file found in default locations")
		log.Printf("Default locations checked:")
		for _, p := range ConfigPaths() {
			log.Printf("  - %s", p)
		}
		log.Printf("Using default configuration")
		log.Printf("Create a config with: diagd init")
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse TOML using BurntSushi/toml library
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDie loads configuration or exits on error
func LoadOrDie(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DIAG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Logger overrides
	if v := os.Getenv("DIAG_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("DIAG_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("DIAG_LOGGER_FILE"); v != "" {
		cfg.Logger.File = v
	}

	// Log store overrides
	if v := os.Getenv("DIAG_LOG_LEVEL"); v != "" {
		cfg.LogStore.LogLevel = v
	}

	// Dashboard overrides
	if v := os.Getenv("DIAG_DASHBOARD_ADDR"); v != "" {
		cfg.Dashboard.Addr = v
	}
	if v := os.Getenv("DIAG_DASHBOARD_TOKEN"); v != "" {
		cfg.Dashboard.AuthToken = v
	}

	// Archive overrides
	if v := os.Getenv("DIAG_ARCHIVE_KEY"); v != "" {
		cfg.Archive.EncryptionKey = v
	}
}

// Save saves the configuration to a file
func Save(cfg *Config, path string) error {
	// Validate before saving
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Normalize paths for TOML compatibility (forward slashes, no backslashes)
	// This fixes Windows path parsing issues where \U is interpreted as Unicode escape
	cfgCopy := *cfg // Make a shallow copy
	cfgCopy.DataDir = filepath.ToSlash(cfg.DataDir)
	if cfgCopy.LogStore.Dir != "" {
		cfgCopy.LogStore.Dir = filepath.ToSlash(cfgCopy.LogStore.Dir)
	}
	if cfgCopy.Analytics.Dir != "" {
		cfgCopy.Analytics.Dir = filepath.ToSlash(cfgCopy.Analytics.Dir)
	}
	if cfgCopy.Archive.Path != "" {
		cfgCopy.Archive.Path = filepath.ToSlash(cfgCopy.Archive.Path)
	}

	// Marshal to TOML using BurntSushi/toml library
	data, err := toml.Marshal(&cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file
func GenerateExampleConfig(path string) error {
	cfg := DefaultConfig()

	// Add example values
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.AuthToken = "change-me"
	cfg.LogStore.ConsoleEnabled = true

	return Save(cfg, path)
}
