package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions as JSON blobs with the idle TTL applied as
// the key TTL, so expiry needs no sweeper.
type RedisStore struct {
	client  *redis.Client
	idleTTL time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, idleTTL time.Duration) *RedisStore {
	if client == nil {
		panic("conversation: redis client required")
	}
	return &RedisStore{client: client, idleTTL: idleTTL}
}

var _ Store = (*RedisStore)(nil)

func sessionKey(userID string) string {
	return fmt.Sprintf("booking_session:%s", userID)
}

// Get loads the session; a missing or expired key maps to ErrSessionNotFound.
func (r *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("conversation: decode session: %w", err)
	}
	return &s, nil
}

// Put stores the session and resets its TTL.
func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	s.Touch()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("conversation: encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.UserID), data, r.idleTTL).Err(); err != nil {
		return fmt.Errorf("conversation: persist session: %w", err)
	}
	return nil
}

// Delete removes the session key.
func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("conversation: delete session: %w", err)
	}
	return nil
}
