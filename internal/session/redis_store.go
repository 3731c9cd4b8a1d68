// Package session caches unsaved workspace drafts in Redis between the
// debounced Postgres flushes.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrDraftNotFound = errors.New("draft not found")

// DefaultDraftTTL bounds how long an abandoned draft survives.
const DefaultDraftTTL = 7 * 24 * time.Hour

// Draft is the latest workspace blob of a user and when it was written.
type Draft struct {
	State   []byte
	SavedAt time.Time
}

// RedisStore keeps one draft hash per user.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed draft store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "draft:",
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// SaveDraft overwrites the draft of userID and restarts its TTL.
func (s *RedisStore) SaveDraft(ctx context.Context, userID string, state []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	key := s.key(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "state", state, "saved_at", time.Now().UTC().UnixMilli())
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft returns ErrDraftNotFound when no draft is cached.
func (s *RedisStore) LoadDraft(ctx context.Context, userID string) (Draft, error) {
	values, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}
	state, ok := values["state"]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}

	draft := Draft{State: []byte(state)}
	var millis int64
	if _, err := fmt.Sscan(values["saved_at"], &millis); err == nil {
		draft.SavedAt = time.UnixMilli(millis).UTC()
	}
	return draft, nil
}

// DeleteDraft drops the cached draft after it reached Postgres.
func (s *RedisStore) DeleteDraft(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
