package server

import (
	"errors"
	"net/http"
	"path/filepath"

	"nasheedpro/internal/auth"
	"nasheedpro/internal/database"
)

// handleWelcome serves the landing page. The root pattern also catches
// unknown paths, which get a 404 instead of the landing page.
func (ms *MusicServer) handleWelcome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(ms.config.Server.StaticDir, "welcome.html"))
}

// handleSignup serves the signup page and processes registrations.
func (ms *MusicServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		http.ServeFile(w, r, filepath.Join(ms.config.Server.StaticDir, "signup.html"))

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		err := ms.authService.Signup(
			r.FormValue("username"),
			r.FormValue("email"),
			r.FormValue("phone"),
			r.FormValue("password"),
		)
		if err != nil {
			if errors.Is(err, database.ErrDuplicateIdentity) {
				// Plain user-visible message, matching the page flow.
				http.Error(w, "Username/email already exists", http.StatusConflict)
				return
			}
			ms.logger.WithError(err).Warn("Signup failed")
			http.Error(w, "Signup failed", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, "/login", http.StatusSeeOther)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLogin serves the login page and processes credentials.
func (ms *MusicServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// Already-authenticated users go straight to the player.
		if session := sessionFromRequest(r); session != nil && !session.IsGuest() {
			http.Redirect(w, r, "/main", http.StatusTemporaryRedirect)
			return
		}
		http.ServeFile(w, r, filepath.Join(ms.config.Server.StaticDir, "login.html"))

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		identifier := r.FormValue("username")
		session, err := ms.authService.Login(identifier, r.FormValue("password"))
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				ms.logger.WithField("identifier", identifier).Warn("Failed login attempt")
				http.Error(w, "Invalid credentials", http.StatusUnauthorized)
				return
			}
			ms.logger.WithError(err).Error("Login failed")
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}

		ms.authService.GetSessionManager().SetSessionCookie(w, session)
		ms.logger.WithField("username", session.Username).Info("User logged in successfully")
		http.Redirect(w, r, "/main", http.StatusSeeOther)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGuest establishes a read-only guest session with no credentials.
func (ms *MusicServer) handleGuest(w http.ResponseWriter, r *http.Request) {
	session, err := ms.authService.GuestEntry()
	if err != nil {
		ms.logger.WithError(err).Error("Guest entry failed")
		http.Error(w, "Guest entry failed", http.StatusInternalServerError)
		return
	}

	ms.authService.GetSessionManager().SetSessionCookie(w, session)
	http.Redirect(w, r, "/main", http.StatusSeeOther)
}

// handleLogout destroys the current session. Logging out without a session
// is not an error.
func (ms *MusicServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if session := sessionFromRequest(r); session != nil {
		ms.authService.Logout(session.ID)
		if !session.IsGuest() {
			ms.logger.WithField("username", session.Username).Info("User logged out")
		}
	}

	ms.authService.GetSessionManager().ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleMain serves the player page to any session holder, guests included.
func (ms *MusicServer) handleMain(w http.ResponseWriter, r *http.Request) {
	if sessionFromRequest(r) == nil {
		http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		return
	}
	http.ServeFile(w, r, filepath.Join(ms.config.Server.StaticDir, "main.html"))
}

// handleUpgrade sets the premium flag for the session user and promotes the
// session tier in place. A no-op for already-premium users.
func (ms *MusicServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session := sessionFromRequest(r)
	if err := ms.authService.Upgrade(session); err != nil {
		if errors.Is(err, auth.ErrAuthRequired) {
			ms.respondError(w, r, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		ms.respondError(w, r, http.StatusInternalServerError, "Upgrade failed", err)
		return
	}

	ms.logger.WithField("username", session.Username).Info("User upgraded to premium")
	http.Redirect(w, r, "/main", http.StatusSeeOther)
}

// handleGetUser reports the caller's identity, or JSON null without a session.
func (ms *MusicServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	session := sessionFromRequest(r)
	if session == nil {
		ms.respondJSON(w, nil)
		return
	}

	if session.IsGuest() {
		ms.respondJSON(w, map[string]interface{}{
			"tier": session.Tier,
		})
		return
	}

	ms.respondJSON(w, map[string]interface{}{
		"tier":      session.Tier,
		"id":        session.UserID,
		"username":  session.Username,
		"isPremium": session.IsPremium(),
	})
}
