package server

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// respondJSON writes a JSON payload with a 200 status.
func (ms *MusicServer) respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		ms.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// respondError sends a structured JSON error response and logs it at a
// level matching the status class.
func (ms *MusicServer) respondError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"error": message,
		"code":  statusCode,
	}
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		ms.logger.WithError(encodeErr).Error("Failed to encode error response")
	}
}
