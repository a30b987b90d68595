package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if cfg.Sync.DebounceDelayMS != 500 {
		t.Errorf("Expected default debounce of 500ms, got %d", cfg.Sync.DebounceDelayMS)
	}
	if cfg.Sync.MaxBatchSize != 50 {
		t.Errorf("Expected default batch size of 50, got %d", cfg.Sync.MaxBatchSize)
	}
	if !cfg.Sync.EnableDRParsing {
		t.Error("Expected DR parsing enabled by default")
	}
	if !cfg.IsFormatSupported(".flac") || !cfg.IsFormatSupported(".mpc") {
		t.Error("Expected default format list to include .flac and .mpc")
	}
	if cfg.IsFormatSupported(".txt") {
		t.Error("Expected .txt to not be a supported format")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("CreatesDefaultFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Failed to load config: %v", err)
		}
		if cfg.Sync.MaxBatchSize != 50 {
			t.Errorf("Expected defaults, got batch size %d", cfg.Sync.MaxBatchSize)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Errorf("Expected config file to be created: %v", err)
		}
	})

	t.Run("ReadsExistingFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		content := `
[database]
path = "/tmp/custom.db"
max_connections = 3

[library]
roots = ["/music/a", "/music/b"]
supported_formats = [".flac"]
watch_for_changes = false
scan_on_startup = false

[sync]
debounce_delay_ms = 250
max_batch_size = 10
enable_dr_parsing = false
dr_cache_ttl_minutes = 5

[logging]
level = "debug"
format = "json"
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Failed to load config: %v", err)
		}
		if cfg.Database.Path != "/tmp/custom.db" {
			t.Errorf("Expected custom db path, got %s", cfg.Database.Path)
		}
		if len(cfg.Library.Roots) != 2 {
			t.Errorf("Expected 2 roots, got %v", cfg.Library.Roots)
		}
		if cfg.Sync.DebounceDelayMS != 250 || cfg.Sync.MaxBatchSize != 10 {
			t.Errorf("Expected custom sync settings, got %+v", cfg.Sync)
		}
		if cfg.Sync.EnableDRParsing {
			t.Error("Expected DR parsing disabled")
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		t.Setenv("RUBATO_DB_PATH", "/tmp/env.db")
		t.Setenv("RUBATO_LOG_LEVEL", "warn")

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Failed to load config: %v", err)
		}
		if cfg.Database.Path != "/tmp/env.db" {
			t.Errorf("Expected env db path, got %s", cfg.Database.Path)
		}
		if cfg.Logging.Level != "warn" {
			t.Errorf("Expected env log level, got %s", cfg.Logging.Level)
		}
	})

	t.Run("InvalidFileRejected", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("not [[ valid toml"), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("Expected error for invalid TOML")
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyDatabasePath", func(c *Config) { c.Database.Path = "" }},
		{"ZeroConnections", func(c *Config) { c.Database.MaxConnections = 0 }},
		{"NoRoots", func(c *Config) { c.Library.Roots = nil }},
		{"NoFormats", func(c *Config) { c.Library.SupportedFormats = nil }},
		{"NegativeDebounce", func(c *Config) { c.Sync.DebounceDelayMS = -1 }},
		{"ZeroBatchSize", func(c *Config) { c.Sync.MaxBatchSize = 0 }},
		{"ZeroCacheTTL", func(c *Config) { c.Sync.DRCacheTTLMinutes = 0 }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := DefaultConfig()
	cfg.Library.Roots = []string{"/music/classical"}
	cfg.Sync.DebounceDelayMS = 750

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	reloaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if len(reloaded.Library.Roots) != 1 || reloaded.Library.Roots[0] != "/music/classical" {
		t.Errorf("Expected saved roots to survive reload, got %v", reloaded.Library.Roots)
	}
	if reloaded.Sync.DebounceDelayMS != 750 {
		t.Errorf("Expected saved debounce to survive reload, got %d", reloaded.Sync.DebounceDelayMS)
	}
}
