// Package session keeps per-login state, including the usable vault key,
// for the lifetime of a login. Sessions are addressed by an opaque token;
// stores only ever see the token's hash.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
)

// TokenLength is the number of random bytes in a session token.
const TokenLength = 32

// ErrSessionNotFound is returned for unknown or expired tokens.
var ErrSessionNotFound = errors.New("session not found or expired")

// Session is the state carried by a logged-in client. KeyEpoch is the
// owner's key epoch at the time EncodedKey was unlocked; record writes made
// with a superseded key are rejected by the store.
type Session struct {
	UserID       uuid.UUID   `json:"user_id"`
	Username     string      `json:"username"`
	EncodedKey   string      `json:"encoded_key"`
	EnvelopeMode crypto.Mode `json:"envelope_mode"`
	KeyEpoch     int         `json:"key_epoch"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// Envelope builds a fresh envelope over the session key. Each call returns
// a new instance, so callers never share one across requests.
func (s *Session) Envelope() (crypto.Envelope, error) {
	key, err := crypto.DecodeKey(s.EncodedKey)
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	defer crypto.ZeroBytes(key)

	return crypto.NewEnvelope(s.EnvelopeMode, key)
}

// Expired reports whether the session is past its expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	// Create stores sess and returns the plaintext token for the client.
	// CreatedAt and ExpiresAt are set by the store.
	Create(ctx context.Context, sess *Session) (string, error)
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	// DeleteUser removes every session belonging to userID.
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

func newToken() (token, id string, err error) {
	token, err = crypto.GenerateTokenString(TokenLength)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return token, tokenID(token), nil
}

func tokenID(token string) string {
	return hex.EncodeToString(crypto.HashTokenString(token))
}
