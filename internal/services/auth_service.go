package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/metrics"
	"github.com/jgutierrezgil/guardiapass/internal/session"
)

// AuthService handles login, logout and session management.
type AuthService struct {
	users           *UserService
	sessions        session.Store
	maxAttempts     int
	lockoutDuration time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

// NewAuthService creates a new AuthService. A maxAttempts of zero or less
// disables account lockout.
func NewAuthService(users *UserService, sessions session.Store, maxAttempts int, lockoutDuration time.Duration) *AuthService {
	return &AuthService{
		users:           users,
		sessions:        sessions,
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		failures:        make(map[string][]time.Time),
		now:             time.Now,
	}
}

// LoginResult is a successful login.
type LoginResult struct {
	Token   string
	Session *session.Session
}

// Login authenticates username and password, unlocks the account's vault
// key and opens a session carrying it.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	log := logging.Logger(ctx)
	attemptKey := strings.ToLower(strings.TrimSpace(username))

	if s.IsAccountLocked(attemptKey) {
		log.Warn("login_locked", "username", username)
		return nil, ErrAccountLocked
	}

	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		s.RecordLoginAttempt(attemptKey, false)
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return nil, err
	}
	s.RecordLoginAttempt(attemptKey, true)

	mode, err := crypto.ParseMode(user.EnvelopeMode)
	if err != nil {
		return nil, err
	}

	key, err := s.users.UnlockKey(user, password)
	if err != nil {
		log.Error("vault_key_unlock_failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("failed to unlock vault key: %w", err)
	}
	defer crypto.ZeroBytes(key)

	sess := &session.Session{
		UserID:       user.ID,
		Username:     user.Username,
		EncodedKey:   crypto.EncodeKey(key),
		EnvelopeMode: mode,
		KeyEpoch:     user.KeyEpoch,
	}
	token, err := s.sessions.Create(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	log.Info("login_succeeded", "user_id", user.ID)
	return &LoginResult{Token: token, Session: sess}, nil
}

// ValidateSession returns the session for token.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return sess, nil
}

// Logout destroys the session for token, discarding its key material.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ChangeMasterPassword changes the master password of the session's user.
// Every session of the user is closed, since their key no longer opens any
// record, and a new session carrying the new vault key is returned.
func (s *AuthService) ChangeMasterPassword(ctx context.Context, token string, p ChangeMasterPasswordParams) (*LoginResult, error) {
	sess, err := s.ValidateSession(ctx, token)
	if err != nil {
		return nil, err
	}

	encodedKey, keyEpoch, err := s.users.ChangeMasterPassword(ctx, sess.UserID, p)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.DeleteUser(ctx, sess.UserID); err != nil {
		logging.Logger(ctx).Error("session_revoke_failed", "user_id", sess.UserID, "error", err)
	}

	fresh := &session.Session{
		UserID:       sess.UserID,
		Username:     sess.Username,
		EncodedKey:   encodedKey,
		EnvelopeMode: sess.EnvelopeMode,
		KeyEpoch:     keyEpoch,
	}
	newToken, err := s.sessions.Create(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &LoginResult{Token: newToken, Session: fresh}, nil
}

// DeleteAccount removes the session user's account and every session of it.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	if err := s.users.Delete(ctx, userID, password); err != nil {
		return err
	}
	if err := s.sessions.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// IsAccountLocked reports whether username has reached the failed login
// limit within the lockout window.
func (s *AuthService) IsAccountLocked(username string) bool {
	if s.maxAttempts <= 0 {
		return false // Lockout disabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.recentFailures(username)) >= s.maxAttempts
}

// RecordLoginAttempt records a login attempt. A success clears the
// username's failures.
func (s *AuthService) RecordLoginAttempt(username string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		delete(s.failures, username)
		return
	}
	s.failures[username] = append(s.recentFailures(username), s.now())
}

// CleanupLoginAttempts forgets failures older than the lockout window.
func (s *AuthService) CleanupLoginAttempts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for username := range s.failures {
		if recent := s.recentFailures(username); len(recent) == 0 {
			delete(s.failures, username)
		} else {
			s.failures[username] = recent
		}
	}
}

// recentFailures returns the failures of username inside the lockout
// window. s.mu must be held.
func (s *AuthService) recentFailures(username string) []time.Time {
	cutoff := s.now().Add(-s.lockoutDuration)

	var recent []time.Time
	for _, t := range s.failures[username] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}
