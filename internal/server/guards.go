package server

import (
	"errors"
	"net/http"

	"nasheedpro/internal/auth"
)

// requireAuthenticated enforces the non-guest gate on API routes. On failure
// it writes the structured 401 response and returns the error so callers can
// bail out.
func (ms *MusicServer) requireAuthenticated(w http.ResponseWriter, r *http.Request, session *auth.Session) error {
	if err := auth.RequireAuthenticated(session); err != nil {
		ms.respondError(w, r, http.StatusUnauthorized, "Authentication required", nil)
		return err
	}
	return nil
}

// requirePremium enforces the premium gate: 401 for guests and anonymous
// callers, 403 for free-tier users.
func (ms *MusicServer) requirePremium(w http.ResponseWriter, r *http.Request, session *auth.Session) error {
	err := auth.RequirePremium(session)
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		ms.respondError(w, r, http.StatusUnauthorized, "Authentication required", nil)
	case errors.Is(err, auth.ErrPremiumRequired):
		ms.respondError(w, r, http.StatusForbidden, "Premium required", nil)
	}
	return err
}
