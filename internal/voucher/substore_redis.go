package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const subKeyPrefix = "voucher_flow:"

// RedisSubStore persists sub-flow sessions in Redis so a flow survives a
// process restart. The key TTL matches the flow window, so Redis evicts
// lapsed flows on its own; Get still checks StartedAt for the case where
// the record is read just inside the eviction boundary.
type RedisSubStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisSubStore creates a Redis-backed store with the given flow window.
func NewRedisSubStore(client *redis.Client, ttl time.Duration) *RedisSubStore {
	return &RedisSubStore{client: client, ttl: ttl, now: time.Now}
}

var _ SubStore = (*RedisSubStore)(nil)

func subKey(userID string) string { return subKeyPrefix + userID }

func (r *RedisSubStore) Get(ctx context.Context, userID string) (*SubSession, error) {
	raw, err := r.client.Get(ctx, subKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSubSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("voucher: redis get: %w", err)
	}
	var s SubSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("voucher: decode sub-session: %w", err)
	}
	if s.Expired(r.now(), r.ttl) {
		_ = r.client.Del(ctx, subKey(userID)).Err()
		return nil, ErrExpired
	}
	return &s, nil
}

func (r *RedisSubStore) Put(ctx context.Context, s *SubSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("voucher: encode sub-session: %w", err)
	}
	remaining := r.ttl - r.now().Sub(s.StartedAt)
	if remaining <= 0 {
		remaining = time.Second
	}
	if err := r.client.Set(ctx, subKey(s.UserID), raw, remaining).Err(); err != nil {
		return fmt.Errorf("voucher: redis set: %w", err)
	}
	return nil
}

func (r *RedisSubStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, subKey(userID)).Err(); err != nil {
		return fmt.Errorf("voucher: redis delete: %w", err)
	}
	return nil
}
