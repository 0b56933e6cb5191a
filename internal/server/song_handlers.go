package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"nasheedpro/internal/database"
	"nasheedpro/pkg/models"
)

// handleGetSongs returns the whole catalog. Authenticated callers get each
// song annotated with their favorite state; guests and anonymous callers get
// the same list unannotated. Store failures are explicit 500s.
func (ms *MusicServer) handleGetSongs(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r)

	if session != nil && !session.IsGuest() {
		songs, err := ms.db.GetSongsWithFavorites(session.UserID)
		if err != nil {
			ms.respondError(w, r, http.StatusInternalServerError, "Error retrieving songs", err)
			return
		}
		if songs == nil {
			songs = []models.AnnotatedSong{}
		}
		ms.respondJSON(w, songs)
		return
	}

	// The anonymous list only changes on library events, so it is cheap to
	// cache; the watcher invalidates on ingest and removal.
	if cached, ok := ms.catalogCache.Get(catalogCacheKey); ok {
		ms.respondJSON(w, cached.([]models.Song))
		return
	}

	songs, err := ms.db.GetAllSongs()
	if err != nil {
		ms.respondError(w, r, http.StatusInternalServerError, "Error retrieving songs", err)
		return
	}
	if songs == nil {
		songs = []models.Song{}
	}

	ms.catalogCache.Set(catalogCacheKey, songs)
	ms.respondJSON(w, songs)
}

// songIDFromPath extracts the trailing numeric ID from /stream/{id} style paths.
func songIDFromPath(path string) (int, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return 0, fmt.Errorf("missing song ID")
	}
	return strconv.Atoi(parts[len(parts)-1])
}

// handleStreamSong streams a song's audio by ID. Range and conditional
// requests are handled by http.ServeContent.
func (ms *MusicServer) handleStreamSong(w http.ResponseWriter, r *http.Request) {
	if sessionFromRequest(r) == nil {
		ms.respondError(w, r, http.StatusUnauthorized, "Session required", nil)
		return
	}

	songID, err := songIDFromPath(r.URL.Path)
	if err != nil {
		ms.respondError(w, r, http.StatusBadRequest, "Invalid song ID", err)
		return
	}

	song, err := ms.db.GetSongByID(songID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			ms.respondError(w, r, http.StatusNotFound, "Song not found", nil)
			return
		}
		ms.respondError(w, r, http.StatusInternalServerError, "Error retrieving song", err)
		return
	}

	file, err := os.Open(song.FilePath)
	if err != nil {
		ms.respondError(w, r, http.StatusInternalServerError, "Error opening audio file", err)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		ms.respondError(w, r, http.StatusInternalServerError, "Error reading audio file", err)
		return
	}

	w.Header().Set("Content-Type", ms.extractor.GetContentType(song.FilePath))
	http.ServeContent(w, r, filepath.Base(song.FilePath), stat.ModTime(), file)
}

// handleDownloadSong serves the original file as an attachment. This is the
// feature the premium tier unlocks.
func (ms *MusicServer) handleDownloadSong(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r)
	if err := ms.requirePremium(w, r, session); err != nil {
		return
	}

	songID, err := songIDFromPath(r.URL.Path)
	if err != nil {
		ms.respondError(w, r, http.StatusBadRequest, "Invalid song ID", err)
		return
	}

	song, err := ms.db.GetSongByID(songID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			ms.respondError(w, r, http.StatusNotFound, "Song not found", nil)
			return
		}
		ms.respondError(w, r, http.StatusInternalServerError, "Error retrieving song", err)
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(song.FilePath)))
	w.Header().Set("Content-Type", ms.extractor.GetContentType(song.FilePath))
	http.ServeFile(w, r, song.FilePath)
}
