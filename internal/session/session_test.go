package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
)

func newSession(t *testing.T, userID uuid.UUID) *Session {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &Session{
		UserID:       userID,
		Username:     "alice",
		EncodedKey:   crypto.EncodeKey(key),
		EnvelopeMode: crypto.ModeAuthenticated,
	}
}

// exerciseStore runs the behavior every Store must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	userID := uuid.New()

	sess := newSession(t, userID)
	sess.KeyEpoch = 2
	token, err := s.Create(ctx, sess)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.False(t, sess.ExpiresAt.IsZero())

	got, err := s.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, sess.EncodedKey, got.EncodedKey)

	_, err = s.Get(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, 2, got.KeyEpoch)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Second)

	require.NoError(t, s.Delete(ctx, token))
	_, err = s.Get(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// DeleteUser only touches that user's sessions.
	t1, err := s.Create(ctx, newSession(t, userID))
	require.NoError(t, err)
	t2, err := s.Create(ctx, newSession(t, userID))
	require.NoError(t, err)
	other, err := s.Create(ctx, newSession(t, uuid.New()))
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, userID))
	for _, tok := range []string{t1, t2} {
		_, err := s.Get(ctx, tok)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	}
	_, err = s.Get(ctx, other)
	assert.NoError(t, err)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(30 * time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	token, err := m.Create(ctx, newSession(t, uuid.New()))
	require.NoError(t, err)
	_, err = m.Create(ctx, newSession(t, uuid.New()))
	require.NoError(t, err)

	now = now.Add(29 * time.Minute)
	_, err = m.Get(ctx, token)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, m.Len())

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 0, m.Len())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Minute)

	sess := newSession(t, uuid.New())
	token, err := m.Create(ctx, sess)
	require.NoError(t, err)

	sess.Username = "mallory"
	got, err := m.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	got.Username = "eve"
	again, _ := m.Get(ctx, token)
	assert.Equal(t, "alice", again.Username)
}

func TestSession_Envelope(t *testing.T) {
	sess := newSession(t, uuid.New())

	env, err := sess.Envelope()
	require.NoError(t, err)
	ct, err := env.Encrypt("hunter2")
	require.NoError(t, err)

	// A second envelope from the same session opens the first one's output.
	env2, err := sess.Envelope()
	require.NoError(t, err)
	pt, err := env2.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pt)

	sess.EncodedKey = "broken"
	_, err = sess.Envelope()
	assert.ErrorIs(t, err, crypto.ErrInvalidInput)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("GPASS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("GPASS_TEST_REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseStore(t, NewRedisStore(client, time.Minute))
}
