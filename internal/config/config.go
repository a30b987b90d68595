package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Library  LibraryConfig  `toml:"library"`
	Sync     SyncConfig     `toml:"sync"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// LibraryConfig contains music library configuration
type LibraryConfig struct {
	Roots            []string `toml:"roots"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
}

// SyncConfig contains incremental-synchronization configuration
type SyncConfig struct {
	DebounceDelayMS   int  `toml:"debounce_delay_ms"`
	MaxBatchSize      int  `toml:"max_batch_size"`
	EnableDRParsing   bool `toml:"enable_dr_parsing"`
	DRCacheTTLMinutes int  `toml:"dr_cache_ttl_minutes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           "./rubato.db",
			MaxConnections: 5,
		},
		Library: LibraryConfig{
			Roots:            []string{"./music"},
			SupportedFormats: []string{".flac", ".mp3", ".aac", ".opus", ".ogg", ".wav", ".aiff", ".aif", ".mpc"},
			WatchForChanges:  true,
			ScanOnStartup:    true,
		},
		Sync: SyncConfig{
			DebounceDelayMS:   500,
			MaxBatchSize:      50,
			EnableDRParsing:   true,
			DRCacheTTLMinutes: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating it with defaults
// when it does not exist yet. Values from the environment (optionally loaded
// from a .env file) override the file: RUBATO_DB_PATH and RUBATO_LOG_LEVEL.
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies RUBATO_* environment overrides. A missing .env
// file is not an error; explicit environment variables win either way.
func (c *Config) applyEnvOverrides() {
	_ = godotenv.Load(".env")

	if v := os.Getenv("RUBATO_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RUBATO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Rubato Library Engine Configuration
# This file contains all configuration options for the rubato
# library-synchronization engine. Edit the values below to customize.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if len(c.Library.Roots) == 0 {
		return fmt.Errorf("at least one library root directory must be specified")
	}
	if len(c.Library.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	if c.Sync.DebounceDelayMS < 0 {
		return fmt.Errorf("debounce delay must not be negative")
	}
	if c.Sync.MaxBatchSize < 1 {
		return fmt.Errorf("max batch size must be at least 1")
	}
	if c.Sync.DRCacheTTLMinutes < 1 {
		return fmt.Errorf("DR cache TTL must be at least 1 minute")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// IsFormatSupported checks if an audio format is supported
func (c *Config) IsFormatSupported(format string) bool {
	for _, supported := range c.Library.SupportedFormats {
		if supported == format {
			return true
		}
	}
	return false
}
