package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nasheedpro/pkg/models"
)

// defaultPlaylistName is used when a playlist is created without a name.
const defaultPlaylistName = "New Playlist"

// handleGetPlaylists returns the session user's playlists newest-first.
// Guests and anonymous callers get an empty list rather than an error.
func (ms *MusicServer) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r)
	if session == nil || session.IsGuest() {
		ms.respondJSON(w, []models.Playlist{})
		return
	}

	playlists, err := ms.db.GetPlaylistsByUser(session.UserID)
	if err != nil {
		ms.respondError(w, r, http.StatusInternalServerError, "Error retrieving playlists", err)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}

	ms.respondJSON(w, playlists)
}

// handleCreatePlaylist creates a playlist for the session user (POST json name).
func (ms *MusicServer) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session := sessionFromRequest(r)
	if err := ms.requireAuthenticated(w, r, session); err != nil {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ms.respondError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultPlaylistName
	}

	id, err := ms.db.CreatePlaylist(session.UserID, name)
	if err != nil {
		ms.respondError(w, r, http.StatusInternalServerError, "Error creating playlist", err)
		return
	}

	ms.respondJSON(w, map[string]interface{}{
		"success": true,
		"playlist": models.Playlist{
			ID:        id,
			UserID:    session.UserID,
			Name:      name,
			CreatedAt: time.Now(),
		},
	})
}
