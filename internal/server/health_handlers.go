package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Database  string                 `json:"database"`
	Library   string                 `json:"library"`
	Songs     int                    `json:"songCount"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks.
func (ms *MusicServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "ok",
		Library:   "ok",
		Details:   make(map[string]interface{}),
	}

	if err := ms.db.Ping(); err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	}

	if _, err := os.Stat(ms.config.Music.LibraryPath); err != nil {
		health.Status = "unhealthy"
		health.Library = "error"
		health.Details["library_error"] = err.Error()
	}

	if songs, err := ms.db.GetAllSongs(); err != nil {
		health.Details["song_count_error"] = err.Error()
	} else {
		health.Songs = len(songs)
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		ms.logger.WithError(err).Error("Failed to encode health response")
	}
}
