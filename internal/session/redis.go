package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	userKeyPrefix    = "session:user:"
)

// RedisStore keeps sessions in Redis with a TTL equal to the session
// lifetime. A per-user set indexes session keys for DeleteUser.
type RedisStore struct {
	client   *redis.Client
	lifetime time.Duration
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client, lifetime time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		lifetime: lifetime,
	}
}

// Create stores sess under a new token.
func (s *RedisStore) Create(ctx context.Context, sess *Session) (string, error) {
	token, id, err := newToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(s.lifetime)

	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	userKey := userKeyPrefix + sess.UserID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+id, data, s.lifetime)
	pipe.SAdd(ctx, userKey, id)
	pipe.Expire(ctx, userKey, s.lifetime)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return token, nil
}

// Get loads the session for token.
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+tokenID(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if sess.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// Delete removes the session for token.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+tokenID(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteUser removes every session of userID.
func (s *RedisStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	userKey := userKeyPrefix + userID.String()

	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, userKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}
