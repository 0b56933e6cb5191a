package server

import (
	"context"
	"net/http"
	"time"

	"nasheedpro/internal/auth"

	"github.com/sirupsen/logrus"
)

type contextKey string

// sessionContextKey carries the resolved *auth.Session (possibly nil) for
// the duration of a request.
const sessionContextKey contextKey = "session"

// responseWriter wraps http.ResponseWriter to capture status code & size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(data)
	rw.size += size
	return size, err
}

// sessionMiddleware resolves the session cookie once per request, refreshes
// the sliding expiry window and attaches the session to the context. An
// invalid or missing cookie leaves a nil session; gating happens per-handler.
func (ms *MusicServer) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionManager := ms.authService.GetSessionManager()
		if session, valid := sessionManager.GetSessionFromRequest(r); valid {
			sessionManager.RefreshSession(session.ID)
			r = r.WithContext(context.WithValue(r.Context(), sessionContextKey, session))
		}
		next.ServeHTTP(w, r)
	})
}

// sessionFromRequest returns the session attached by sessionMiddleware, or
// nil when the caller has none.
func sessionFromRequest(r *http.Request) *auth.Session {
	session, _ := r.Context().Value(sessionContextKey).(*auth.Session)
	return session
}

// requestLoggingMiddleware logs HTTP requests (if enabled) with latency & size.
func (ms *MusicServer) requestLoggingMiddleware(next http.Handler) http.Handler {
	if !ms.config.Logging.RequestLogging {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     200, // Default status code
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		// Skip logging for static assets to reduce noise
		if ms.shouldLogRequest(r.URL.Path) {
			ms.logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remote":   r.RemoteAddr,
				"status":   rw.statusCode,
				"size":     rw.size,
				"duration": duration.Round(time.Millisecond).String(),
			}).Info("Request handled")
		}
	})
}

// corsMiddleware injects CORS headers if enabled in configuration.
func (ms *MusicServer) corsMiddleware(next http.Handler) http.Handler {
	if !ms.config.Server.EnableCORS {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// shouldLogRequest filters noisy paths from request logging output.
func (ms *MusicServer) shouldLogRequest(path string) bool {
	skipPaths := []string{
		"/static/",
		"/covers/",
		"/favicon.ico",
		"/health",
	}

	for _, skipPath := range skipPaths {
		if len(path) >= len(skipPath) && path[:len(skipPath)] == skipPath {
			return false
		}
	}

	return true
}

// panicRecoveryMiddleware intercepts panics returning HTTP 500 without crashing the process.
func (ms *MusicServer) panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				ms.logger.WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  err,
				}).Error("Panic in handler")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
