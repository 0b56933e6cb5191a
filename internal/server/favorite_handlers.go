package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"nasheedpro/internal/database"
)

// flexInt decodes JSON numbers that some clients send as strings (the
// original web player posts the song ID straight from a DOM data attribute).
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// handleToggleFavorite flips the favorite association for the session user
// and reports the resulting state.
func (ms *MusicServer) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session := sessionFromRequest(r)
	if err := ms.requireAuthenticated(w, r, session); err != nil {
		return
	}

	var req struct {
		SongID flexInt `json:"song_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ms.respondError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	isFavorite, err := ms.db.ToggleFavorite(session.UserID, int(req.SongID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			ms.respondError(w, r, http.StatusNotFound, "Song not found", nil)
			return
		}
		ms.respondError(w, r, http.StatusInternalServerError, "Error toggling favorite", err)
		return
	}

	ms.respondJSON(w, map[string]bool{"is_favorite": isFavorite})
}
