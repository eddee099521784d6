// Package config provides configuration management for the diagnostics daemon.
// Supports TOML configuration files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/armorclaw/diagnostics/pkg/analytics"
	"github.com/armorclaw/diagnostics/pkg/archive"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/logger"
	"github.com/armorclaw/diagnostics/pkg/logstore"
	"github.com/armorclaw/diagnostics/pkg/netmon"
	"github.com/armorclaw/diagnostics/pkg/privacy"
	"github.com/armorclaw/diagnostics/pkg/retry"
)

// Helper function to validate directory exists or can be created
func validateDirectoryWritable(dir string) error {
	// Check if directory exists
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// Try to create it
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	// Check if it's actually a directory
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	// Check if we can write to it
	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("cannot write to directory: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingValue  = errors.New("missing required configuration value")
)

// Config holds all diagnostics daemon configuration
type Config struct {
	// AppVersion is stamped onto every tracked event and log record
	AppVersion string `toml:"app_version"`

	// DataDir is the root directory for logs, analytics, and archives
	DataDir string `toml:"data_dir" env:"DIAG_DATA_DIR"`

	// Logger configuration (the daemon's own structured output)
	Logger LoggerConfig `toml:"logger"`

	// LogStore configuration
	LogStore LogStoreConfig `toml:"logstore"`

	// Analytics configuration
	Analytics AnalyticsConfig `toml:"analytics"`

	// Retry configuration
	Retry RetryConfig `toml:"retry"`

	// Network monitor configuration
	Network NetworkConfig `toml:"network"`

	// Archive configuration
	Archive ArchiveConfig `toml:"archive"`

	// Dashboard configuration
	Dashboard DashboardConfig `toml:"dashboard"`

	// Schedule configuration
	Schedule ScheduleConfig `toml:"schedule"`
}

// LoggerConfig holds the daemon's own slog output settings
type LoggerConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `toml:"level" env:"DIAG_LOGGER_LEVEL"`

	// Format is the log format (json, text)
	Format string `toml:"format" env:"DIAG_LOGGER_FORMAT"`

	// File is the output path; empty logs to stderr
	File string `toml:"file" env:"DIAG_LOGGER_FILE"`
}

// LogStoreConfig holds the rotating diagnostic log store settings
type LogStoreConfig struct {
	// Dir is the log directory; empty defaults to <data_dir>/logs
	Dir string `toml:"dir"`

	// MaxFileSize is the rotation threshold for the active file in bytes
	MaxFileSize int64 `toml:"max_file_size"`

	// MaxLogFiles caps how many rotated files are kept on disk
	MaxLogFiles int `toml:"max_log_files"`

	// LogLevel is the minimum severity recorded (info, warning, error, critical, fatal)
	LogLevel string `toml:"log_level" env:"DIAG_LOG_LEVEL"`

	// ConsoleEnabled mirrors entries to stdout
	ConsoleEnabled bool `toml:"console_enabled"`

	// FileEnabled writes entries to the rotating file sink
	FileEnabled bool `toml:"file_enabled"`

	// PrivacyFilteringEnabled redacts messages and metadata before writing
	PrivacyFilteringEnabled bool `toml:"privacy_filtering_enabled"`
}

// AnalyticsConfig holds the error analytics engine settings
type AnalyticsConfig struct {
	// Dir is the analytics directory; empty defaults to <data_dir>/analytics
	Dir string `toml:"dir"`

	// MaxEventsStored bounds the in-memory event window
	MaxEventsStored int `toml:"max_events_stored"`

	// RetentionDays is the age cutoff for daily cleanup
	RetentionDays int `toml:"retention_days"`

	// PatternDetectionThreshold is the minimum occurrences for a pattern
	PatternDetectionThreshold int `toml:"pattern_detection_threshold"`

	// AutoCleanupEnabled runs the once-per-day retention sweep
	AutoCleanupEnabled bool `toml:"auto_cleanup_enabled"`

	// TrackUserIDs records user identifiers on events
	TrackUserIDs bool `toml:"track_user_ids"`

	// TrackSessionIDs records session identifiers on events
	TrackSessionIDs bool `toml:"track_session_ids"`
}

// RetryConfig holds backoff policy settings
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `toml:"max_retries"`

	// BaseDelay is the first retry delay (Go duration string)
	BaseDelay string `toml:"base_delay"`

	// MaxDelay caps the computed delay (Go duration string)
	MaxDelay string `toml:"max_delay"`

	// Multiplier grows the delay after each retry
	Multiplier float64 `toml:"multiplier"`
}

// NetworkConfig holds connectivity monitor settings
type NetworkConfig struct {
	// CheckInterval is how often the monitor re-probes the path state
	CheckInterval string `toml:"check_interval"`

	// ProbeTimeout bounds a single reachability probe
	ProbeTimeout string `toml:"probe_timeout"`

	// ProbeHosts are tried in order until one answers
	ProbeHosts []string `toml:"probe_hosts"`
}

// ArchiveConfig holds the SQLite event archive settings
type ArchiveConfig struct {
	// Enabled turns long-term archival on
	Enabled bool `toml:"enabled"`

	// Path is the database file; empty defaults to <data_dir>/archive.db
	Path string `toml:"path"`

	// RetentionDays is the age cutoff for archive pruning
	RetentionDays int `toml:"retention_days"`

	// EncryptionKey, when non-empty, opens the archive with the
	// encrypted driver
	EncryptionKey string `toml:"encryption_key" env:"DIAG_ARCHIVE_KEY"`
}

// DashboardConfig holds the local web dashboard settings
type DashboardConfig struct {
	// Enabled serves the dashboard
	Enabled bool `toml:"enabled"`

	// Addr is the listen address
	Addr string `toml:"addr" env:"DIAG_DASHBOARD_ADDR"`

	// AuthToken, when non-empty, is required as a bearer token
	AuthToken string `toml:"auth_token" env:"DIAG_DASHBOARD_TOKEN"`

	// MaxConnections bounds concurrent dashboard clients
	MaxConnections int `toml:"max_connections"`
}

// ScheduleConfig holds background job settings
type ScheduleConfig struct {
	// Enabled runs the cron jobs (cleanup, archive prune, daily report)
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		AppVersion: "1.4.2",
		DataDir:    filepath.Join(homeDir, ".diagd"),
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		LogStore: LogStoreConfig{
			Dir:                     "",
			MaxFileSize:             1048576,
			MaxLogFiles:             5,
			LogLevel:                "info",
			ConsoleEnabled:          false,
			FileEnabled:             true,
			PrivacyFilteringEnabled: true,
		},
		Analytics: AnalyticsConfig{
			Dir:                       "",
			MaxEventsStored:           100,
			RetentionDays:             30,
			PatternDetectionThreshold: 5,
			AutoCleanupEnabled:        true,
			TrackUserIDs:              true,
			TrackSessionIDs:           true,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  "1s",
			MaxDelay:   "10s",
			Multiplier: 2.0,
		},
		Network: NetworkConfig{
			CheckInterval: "30s",
			ProbeTimeout:  "5s",
			ProbeHosts: []string{
				"https://www.google.com",
				"https://www.cloudflare.com",
				"https://www.apple.com",
			},
		},
		Archive: ArchiveConfig{
			Enabled:       true,
			Path:          "",
			RetentionDays: 90,
			EncryptionKey: "",
		},
		Dashboard: DashboardConfig{
			Enabled:        false,
			Addr:           "127.0.0.1:8675",
			AuthToken:      "",
			MaxConnections: 32,
		},
		Schedule: ScheduleConfig{
			Enabled: true,
		},
	}
}

// ConfigPaths returns the list of default configuration file paths to check
func ConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".diagd", "config.toml"),
		filepath.Join("/etc", "diagd", "config.toml"),
		"./config.toml",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if err := validateDirectoryWritable(c.DataDir); err != nil {
		return fmt.Errorf("%w: data directory %s: %w", ErrInvalidConfig, c.DataDir, err)
	}

	// Validate logger configuration
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logger.Level] {
		return fmt.Errorf("%w: logger.level must be one of: debug, info, warn, error", ErrInvalidConfig)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Logger.Format] {
		return fmt.Errorf("%w: logger.format must be one of: json, text", ErrInvalidConfig)
	}

	// Validate log store configuration
	if c.LogStore.MaxFileSize < 1 {
		return fmt.Errorf("%w: logstore.max_file_size must be positive", ErrInvalidConfig)
	}
	if c.LogStore.MaxLogFiles < 1 {
		return fmt.Errorf("%w: logstore.max_log_files must be at least 1", ErrInvalidConfig)
	}
	if _, ok := errsys.ParseSeverity(c.LogStore.LogLevel); !ok {
		return fmt.Errorf("%w: logstore.log_level %q is not a known severity", ErrInvalidConfig, c.LogStore.LogLevel)
	}

	// Validate analytics configuration
	if c.Analytics.MaxEventsStored < 1 {
		return fmt.Errorf("%w: analytics.max_events_stored must be at least 1", ErrInvalidConfig)
	}
	if c.Analytics.RetentionDays < 0 {
		return fmt.Errorf("%w: analytics.retention_days cannot be negative", ErrInvalidConfig)
	}
	if c.Analytics.PatternDetectionThreshold < 1 {
		return fmt.Errorf("%w: analytics.pattern_detection_threshold must be at least 1", ErrInvalidConfig)
	}

	// Validate retry configuration
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: retry.max_retries cannot be negative", ErrInvalidConfig)
	}
	baseDelay, err := time.ParseDuration(c.Retry.BaseDelay)
	if err != nil {
		return fmt.Errorf("%w: retry.base_delay: %w", ErrInvalidConfig, err)
	}
	maxDelay, err := time.ParseDuration(c.Retry.MaxDelay)
	if err != nil {
		return fmt.Errorf("%w: retry.max_delay: %w", ErrInvalidConfig, err)
	}
	if baseDelay < 0 || maxDelay < 0 {
		return fmt.Errorf("%w: retry delays cannot be negative", ErrInvalidConfig)
	}
	if c.Retry.Multiplier < 1.0 {
		return fmt.Errorf("%w: retry.multiplier must be at least 1.0", ErrInvalidConfig)
	}

	// Validate network configuration
	if _, err := time.ParseDuration(c.Network.CheckInterval); err != nil {
		return fmt.Errorf("%w: network.check_interval: %w", ErrInvalidConfig, err)
	}
	if _, err := time.ParseDuration(c.Network.ProbeTimeout); err != nil {
		return fmt.Errorf("%w: network.probe_timeout: %w", ErrInvalidConfig, err)
	}
	if len(c.Network.ProbeHosts) == 0 {
		return fmt.Errorf("%w: network.probe_hosts must list at least one host", ErrInvalidConfig)
	}

	// Validate archive configuration
	if c.Archive.RetentionDays < 0 {
		return fmt.Errorf("%w: archive.retention_days cannot be negative", ErrInvalidConfig)
	}

	// Validate dashboard configuration
	if c.Dashboard.Enabled {
		if c.Dashboard.Addr == "" {
			return fmt.Errorf("%w: dashboard.addr is required when dashboard is enabled", ErrInvalidConfig)
		}
		if c.Dashboard.MaxConnections < 1 {
			return fmt.Errorf("%w: dashboard.max_connections must be at least 1", ErrInvalidConfig)
		}
	}

	return nil
}

// LogDir returns the resolved log store directory
func (c *Config) LogDir() string {
	if c.LogStore.Dir != "" {
		return c.LogStore.Dir
	}
	return filepath.Join(c.DataDir, "logs")
}

// AnalyticsDir returns the resolved analytics directory
func (c *Config) AnalyticsDir() string {
	if c.Analytics.Dir != "" {
		return c.Analytics.Dir
	}
	return filepath.Join(c.DataDir, "analytics")
}

// ArchivePath returns the resolved archive database path
func (c *Config) ArchivePath() string {
	if c.Archive.Path != "" {
		return c.Archive.Path
	}
	return filepath.Join(c.DataDir, "archive.db")
}

// ToLoggerConfig converts the Config to logger.Config
func (c *Config) ToLoggerConfig(component string, scrubber *privacy.Scrubber) logger.Config {
	output := c.Logger.File
	if output == "" {
		output = "stderr"
	}
	return logger.Config{
		Level:     c.Logger.Level,
		Format:    c.Logger.Format,
		Output:    output,
		Component: component,
		Version:   c.AppVersion,
		Scrubber:  scrubber,
	}
}

// ToLogStoreConfig converts the Config to logstore.Config
func (c *Config) ToLogStoreConfig() logstore.Config {
	minSeverity, ok := errsys.ParseSeverity(c.LogStore.LogLevel)
	if !ok {
		minSeverity = errsys.SeverityInfo
	}
	return logstore.Config{
		Dir:              c.LogDir(),
		MaxFileSize:      c.LogStore.MaxFileSize,
		MaxLogFiles:      c.LogStore.MaxLogFiles,
		MinSeverity:      minSeverity,
		ConsoleEnabled:   c.LogStore.ConsoleEnabled,
		FileEnabled:      c.LogStore.FileEnabled,
		PrivacyFiltering: c.LogStore.PrivacyFilteringEnabled,
	}
}

// ToAnalyticsConfig converts the Config to analytics.Config
func (c *Config) ToAnalyticsConfig() analytics.Config {
	return analytics.Config{
		Dir:              c.AnalyticsDir(),
		MaxEventsStored:  c.Analytics.MaxEventsStored,
		RetentionDays:    c.Analytics.RetentionDays,
		PatternThreshold: c.Analytics.PatternDetectionThreshold,
		AutoCleanup:      c.Analytics.AutoCleanupEnabled,
		TrackUserIDs:     c.Analytics.TrackUserIDs,
		TrackSessionIDs:  c.Analytics.TrackSessionIDs,
	}
}

// ToRetryPolicy converts the Config to retry.Policy
func (c *Config) ToRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  parseDuration(c.Retry.BaseDelay, time.Second),
		MaxDelay:   parseDuration(c.Retry.MaxDelay, 10*time.Second),
		Multiplier: c.Retry.Multiplier,
	}
}

// ToMonitorConfig converts the Config to netmon.Config
func (c *Config) ToMonitorConfig() netmon.Config {
	return netmon.Config{
		CheckInterval: parseDuration(c.Network.CheckInterval, 30*time.Second),
		ProbeTimeout:  parseDuration(c.Network.ProbeTimeout, 5*time.Second),
		ProbeHosts:    append([]string(nil), c.Network.ProbeHosts...),
	}
}

// ToArchiveConfig converts the Config to archive.Config
func (c *Config) ToArchiveConfig() archive.Config {
	return archive.Config{
		Path:          c.ArchivePath(),
		RetentionDays: c.Archive.RetentionDays,
		EncryptionKey: c.Archive.EncryptionKey,
	}
}

// IsArchiveEnabled returns true if long-term archival is enabled
func (c *Config) IsArchiveEnabled() bool {
	return c.Archive.Enabled
}

// IsDashboardEnabled returns true if the web dashboard is enabled
func (c *Config) IsDashboardEnabled() bool {
	return c.Dashboard.Enabled
}

// parseDuration parses a duration string, falling back when invalid.
// Validate rejects malformed values, so the fallback only covers
// configs built in code.
func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
