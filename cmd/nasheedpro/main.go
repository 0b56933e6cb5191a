package main

import (
	"os"
	"os/signal"
	"syscall"

	"nasheedpro/internal/config"
	"nasheedpro/internal/database"
	"nasheedpro/internal/server"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load .env before config so env overrides pick it up
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logger.WithError(err).Warn("Could not load .env file")
		}
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	// Make sure the song library exists before scanning it
	if _, err := os.Stat(cfg.Music.LibraryPath); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.Music.LibraryPath, 0755); err != nil {
			logger.WithField("library_path", cfg.Music.LibraryPath).Fatal("Song library directory does not exist and could not be created")
		}
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	// Create and configure the server
	musicServer, err := server.NewMusicServer(cfg, db)
	if err != nil {
		logger.WithError(err).Fatal("Error creating server")
	}

	// Scan the song library
	if err := musicServer.ScanMusicLibrary(); err != nil {
		logger.WithError(err).Fatal("Error scanning song library")
	}

	// Check catalog size and warn if empty
	if cfg.Music.ScanOnStartup {
		songs, err := db.GetAllSongs()
		if err != nil {
			logger.WithError(err).Warn("Could not get song count")
		} else if len(songs) == 0 {
			logger.WithField("supported_formats", cfg.Music.SupportedFormats).Warn("No supported audio files found in song library")
		}
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start the server in a goroutine
	go func() {
		musicServer.Start()
	}()

	// Wait for shutdown signal
	<-c

	logger.Info("Received shutdown signal")
	musicServer.Shutdown()
}
