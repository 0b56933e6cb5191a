package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Session represents an active session. Guest sessions carry no user
// identifier; Username is captured at login and never changes afterwards
// (there is no rename operation), while Tier is promoted in place by
// Upgrade so it cannot drift from the store.
type Session struct {
	ID        string
	Tier      Tier
	UserID    int
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsGuest reports whether the session is unauthenticated.
func (s *Session) IsGuest() bool {
	return s.Tier == TierGuest
}

// IsPremium reports whether the session carries the premium entitlement.
func (s *Session) IsPremium() bool {
	return s.Tier == TierPremium
}

// SessionManager manages sessions in memory. Cookie values are the session
// ID plus an HMAC-SHA256 tag keyed by the configured secret; a bad tag is
// indistinguishable from no session.
type SessionManager struct {
	sessions      map[string]*Session
	mutex         sync.RWMutex
	duration      time.Duration
	cookieName    string
	secret        []byte
	secureCookies bool
}

// NewSessionManager creates a new session manager
func NewSessionManager(secret string, duration time.Duration, secureCookies bool) *SessionManager {
	sm := &SessionManager{
		sessions:      make(map[string]*Session),
		duration:      duration,
		cookieName:    "nasheedpro_session",
		secret:        []byte(secret),
		secureCookies: secureCookies,
	}

	// Start cleanup goroutine
	go sm.cleanupExpiredSessions()

	return sm
}

// CreateSession creates a new session for an authenticated user.
func (sm *SessionManager) CreateSession(tier Tier, userID int, username string) (*Session, error) {
	if tier == TierGuest {
		return nil, fmt.Errorf("guest sessions are created via CreateGuestSession")
	}

	return sm.create(&Session{
		Tier:     tier,
		UserID:   userID,
		Username: username,
	})
}

// CreateGuestSession creates an unauthenticated read-only session.
func (sm *SessionManager) CreateGuestSession() (*Session, error) {
	return sm.create(&Session{Tier: TierGuest})
}

func (sm *SessionManager) create(session *Session) (*Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session.ID = sessionID
	session.CreatedAt = now
	session.ExpiresAt = now.Add(sm.duration)

	sm.mutex.Lock()
	sm.sessions[sessionID] = session
	sm.mutex.Unlock()

	return session, nil
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(sessionID string) (*Session, bool) {
	sm.mutex.RLock()
	session, exists := sm.sessions[sessionID]
	sm.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	// Check if session is expired
	if time.Now().After(session.ExpiresAt) {
		sm.DeleteSession(sessionID)
		return nil, false
	}

	return session, true
}

// DeleteSession removes a session. Deleting an unknown ID is a no-op, which
// makes logout idempotent.
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mutex.Lock()
	delete(sm.sessions, sessionID)
	sm.mutex.Unlock()
}

// RefreshSession extends the session expiration time (sliding window).
func (sm *SessionManager) RefreshSession(sessionID string) bool {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return false
	}

	if time.Now().After(session.ExpiresAt) {
		delete(sm.sessions, sessionID)
		return false
	}

	session.ExpiresAt = time.Now().Add(sm.duration)
	return true
}

// Promote upgrades a live session's tier to premium in place.
func (sm *SessionManager) Promote(sessionID string) bool {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists || session.Tier == TierGuest {
		return false
	}

	session.Tier = TierPremium
	return true
}

// SetSessionCookie sets the signed session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	cookie := &http.Cookie{
		Name:     sm.cookieName,
		Value:    sm.sign(session.ID),
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   sm.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	}

	http.SetCookie(w, cookie)
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   sm.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	}

	http.SetCookie(w, cookie)
}

// GetSessionFromRequest extracts and verifies the session cookie.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		return nil, false
	}

	sessionID, ok := sm.verify(cookie.Value)
	if !ok {
		return nil, false
	}

	return sm.GetSession(sessionID)
}

// sign produces the cookie value "<id>.<hex hmac>".
func (sm *SessionManager) sign(sessionID string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(sessionID))
	return sessionID + "." + hex.EncodeToString(mac.Sum(nil))
}

// verify checks the cookie signature and returns the embedded session ID.
func (sm *SessionManager) verify(value string) (string, bool) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 {
		return "", false
	}

	sessionID, tag := value[:idx], value[idx+1:]
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(sessionID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(tag), []byte(expected)) {
		return "", false
	}
	return sessionID, true
}

// cleanupExpiredSessions periodically removes expired sessions
func (sm *SessionManager) cleanupExpiredSessions() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		sm.mutex.Lock()

		for id, session := range sm.sessions {
			if now.After(session.ExpiresAt) {
				delete(sm.sessions, id)
			}
		}

		sm.mutex.Unlock()
	}
}

// generateSessionID generates a cryptographically secure session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
