package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"nasheedpro/internal/config"
	"nasheedpro/internal/database"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords; callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAuthRequired is returned when a guest session attempts an
	// operation reserved for authenticated users.
	ErrAuthRequired = errors.New("authentication required")

	// ErrPremiumRequired is returned when a free-tier session attempts a
	// premium-gated operation.
	ErrPremiumRequired = errors.New("premium required")
)

// Service provides signup, login, guest entry, logout and upgrade on top of
// the relational credential store and the in-memory session manager.
type Service struct {
	store    *database.Database
	sessions *SessionManager
}

// NewService creates a new authentication service
func NewService(cfg *config.SessionConfig, store *database.Database) (*Service, error) {
	duration, err := time.ParseDuration(cfg.Duration)
	if err != nil {
		return nil, fmt.Errorf("invalid session duration: %w", err)
	}

	return &Service{
		store:    store,
		sessions: NewSessionManager(cfg.Secret, duration, cfg.SecureCookies),
	}, nil
}

// Signup persists a new user with a hashed password. A colliding username
// or email surfaces as database.ErrDuplicateIdentity.
func (s *Service) Signup(username, email, phone, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)

	if username == "" || email == "" || password == "" {
		return fmt.Errorf("username, email and password are required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if _, err := s.store.CreateUser(username, email, phone, hash); err != nil {
		return err
	}
	return nil
}

// Login authenticates by username or email and establishes a session at the
// tier the stored premium flag implies.
func (s *Service) Login(identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByIdentifier(identifier)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	tier := TierFree
	if user.IsPremium {
		tier = TierPremium
	}

	session, err := s.sessions.CreateSession(tier, user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GuestEntry establishes a read-only guest session with no credential check.
func (s *Service) GuestEntry() (*Session, error) {
	session, err := s.sessions.CreateGuestSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create guest session: %w", err)
	}
	return session, nil
}

// Logout invalidates a session. Unknown IDs are ignored.
func (s *Service) Logout(sessionID string) {
	s.sessions.DeleteSession(sessionID)
}

// Upgrade sets the user's premium flag and promotes the session tier in
// place. Upgrading an already-premium user succeeds as a no-op.
func (s *Service) Upgrade(session *Session) error {
	if err := RequireAuthenticated(session); err != nil {
		return err
	}

	if err := s.store.SetPremium(session.UserID); err != nil {
		return fmt.Errorf("failed to set premium flag: %w", err)
	}

	s.sessions.Promote(session.ID)
	return nil
}

// GetSessionManager returns the session manager (for middleware)
func (s *Service) GetSessionManager() *SessionManager {
	return s.sessions
}

// RequireAuthenticated fails unless the session exists and is non-guest.
func RequireAuthenticated(session *Session) error {
	if session == nil || session.IsGuest() {
		return ErrAuthRequired
	}
	return nil
}

// RequirePremium fails unless the session carries the premium tier.
func RequirePremium(session *Session) error {
	if err := RequireAuthenticated(session); err != nil {
		return err
	}
	if !session.IsPremium() {
		return ErrPremiumRequired
	}
	return nil
}
