package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"nasheedpro/internal/auth"
	"nasheedpro/internal/cache"
	"nasheedpro/internal/config"
	"nasheedpro/internal/database"
	"nasheedpro/internal/metadata"
	"nasheedpro/internal/tunnel"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// catalogCacheKey is the single key under which the anonymous song list is
// cached. Authenticated responses are per-user and never cached.
const catalogCacheKey = "songs"

// MusicServer represents the main streaming server
type MusicServer struct {
	db            *database.Database
	config        *config.Config
	authService   *auth.Service
	extractor     *metadata.Extractor
	watcher       *fsnotify.Watcher
	tunnelService *tunnel.Service
	catalogCache  *cache.MemoryCache
	logger        *logrus.Logger
	mux           *http.ServeMux
}

// NewMusicServer creates a new server instance
func NewMusicServer(cfg *config.Config, db *database.Database) (*MusicServer, error) {
	logger := logrus.New()
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	authService, err := auth.NewService(&cfg.Session, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	tunnelSvc, err := tunnel.NewService(&cfg.Tunnel)
	if err != nil {
		logger.WithError(err).Warn("Tunnel service not available")
		tunnelSvc = nil
	}

	server := &MusicServer{
		db:            db,
		config:        cfg,
		authService:   authService,
		extractor:     metadata.NewExtractor(cfg.Music.SupportedFormats, cfg.Music.CoversDir),
		tunnelService: tunnelSvc,
		catalogCache:  cache.NewMemoryCache(1 * time.Minute),
		logger:        logger,
	}

	server.setupRoutes()
	return server, nil
}

// ScanMusicLibrary scans the music directory and adds songs to the database
func (ms *MusicServer) ScanMusicLibrary() error {
	if !ms.config.Music.ScanOnStartup {
		ms.logger.Info("Skipping library scan (disabled in config)")
		return nil
	}

	ms.logger.WithField("library_path", ms.config.Music.LibraryPath).Info("Scanning music library")

	var wg sync.WaitGroup
	var songCount int64
	jobs := make(chan string, 100)

	// Start worker pool
	numWorkers := runtime.NumCPU()
	for i := 0; i < numWorkers; i++ {
		go func() {
			for path := range jobs {
				song, err := ms.extractor.ExtractFromFile(path)
				if err != nil {
					ms.logger.WithError(err).WithField("path", path).Error("Error extracting metadata")
					wg.Done()
					continue
				}
				_, err = ms.db.InsertSong(song)
				if err != nil {
					ms.logger.WithError(err).WithField("path", path).Error("Error inserting song into database")
				} else {
					atomic.AddInt64(&songCount, 1)
				}
				wg.Done()
			}
		}()
	}

	// Walk directory and enqueue jobs
	walkErr := filepath.Walk(ms.config.Music.LibraryPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ms.extractor.IsAudioFile(path) {
			wg.Add(1)
			jobs <- path
		}
		return nil
	})

	// Close jobs channel and wait for all workers
	close(jobs)
	wg.Wait()

	ms.catalogCache.Delete(catalogCacheKey)
	ms.logger.WithField("count", songCount).Info("Library scan complete")
	return walkErr
}

// Start starts the server and blocks until it exits.
func (ms *MusicServer) Start() {
	// Start file watcher if enabled
	if ms.config.Music.WatchForChanges {
		if err := ms.startFileWatcher(); err != nil {
			ms.logger.WithError(err).Warn("Could not start file watcher")
		} else {
			defer ms.stopFileWatcher()
		}
	}

	songs, err := ms.db.GetAllSongs()
	songCount := 0
	if err == nil {
		songCount = len(songs)
	}

	localAddress := fmt.Sprintf("http://%s", ms.config.GetAddress())

	ms.logger.WithField("port", ms.config.Server.Port).Info("NasheedPro server starting")
	ms.logger.WithField("count", songCount).Info("Song catalog loaded")
	ms.logger.WithField("url", localAddress).Info("Local access")

	// Start the public tunnel if enabled
	if ms.tunnelService != nil {
		ctx := context.Background()
		if err := ms.tunnelService.Start(ctx, localAddress); err != nil {
			ms.logger.WithError(err).Warn("Could not start tunnel")
		} else {
			defer ms.tunnelService.Stop()
		}
	}

	server := &http.Server{
		Addr:        ms.config.GetAddress(),
		Handler:     ms.Handler(),
		ReadTimeout: time.Duration(ms.config.Server.ReadTimeout) * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		ms.logger.WithError(err).Fatal("Server failed to start")
	}
}

// Handler returns the full middleware-wrapped HTTP handler.
func (ms *MusicServer) Handler() http.Handler {
	var handler http.Handler = ms.mux
	handler = ms.sessionMiddleware(handler)
	handler = ms.corsMiddleware(handler)
	handler = ms.requestLoggingMiddleware(handler)
	handler = ms.panicRecoveryMiddleware(handler)
	return handler
}

func (ms *MusicServer) setupRoutes() {
	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("/", ms.handleWelcome)
	mux.HandleFunc("/login", ms.handleLogin)
	mux.HandleFunc("/signup", ms.handleSignup)
	mux.HandleFunc("/guest", ms.handleGuest)
	mux.HandleFunc("/logout", ms.handleLogout)
	mux.HandleFunc("/main", ms.handleMain)
	mux.HandleFunc("/upgrade", ms.handleUpgrade)

	// Static assets and cover art
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(ms.config.Server.StaticDir))))
	mux.Handle("/covers/", http.StripPrefix("/covers/", http.FileServer(http.Dir(ms.config.Music.CoversDir))))

	// API
	mux.HandleFunc("/api/user", ms.handleGetUser)
	mux.HandleFunc("/api/songs", ms.handleGetSongs)
	mux.HandleFunc("/api/toggle-favorite", ms.handleToggleFavorite)
	mux.HandleFunc("/api/playlists", ms.handleGetPlaylists)
	mux.HandleFunc("/api/playlist", ms.handleCreatePlaylist)

	// Audio
	mux.HandleFunc("/stream/", ms.handleStreamSong)
	mux.HandleFunc("/download/", ms.handleDownloadSong)

	mux.HandleFunc("/health", ms.handleHealthCheck)

	ms.mux = mux
}

// Shutdown gracefully shuts down the server
func (ms *MusicServer) Shutdown() {
	ms.logger.Info("Shutting down server...")

	ms.stopFileWatcher()
	if ms.tunnelService != nil {
		ms.tunnelService.Stop()
	}

	ms.logger.Info("Server shutdown complete")
}
