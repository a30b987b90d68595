package main

import (
	"os"
	"os/signal"
	"syscall"

	"rubato/internal/config"
	"rubato/internal/database"
	"rubato/internal/library"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	// Check that the library roots exist
	for _, root := range cfg.Library.Roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			logger.WithField("root", root).Fatal("Library directory does not exist. Please create it and add your music files.")
		}
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	engine := library.NewEngine(cfg, db)

	// Bring the catalog up to date with the filesystem
	if cfg.Library.ScanOnStartup {
		synced, err := engine.ScanLibrary()
		if err != nil {
			logger.WithError(err).Fatal("Error scanning music library")
		}
		if synced == 0 {
			logger.WithField("supported_formats", cfg.Library.SupportedFormats).Warn("No supported audio files found in library directories")
		}
	}

	if !cfg.Library.WatchForChanges {
		logger.Info("File watching disabled, exiting after scan")
		return
	}

	if err := engine.Start(); err != nil {
		logger.WithError(err).Fatal("Error starting library engine")
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal
	<-c

	logger.Info("Received shutdown signal")
	engine.Stop()
}
