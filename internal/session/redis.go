package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"raggate/pkg/types"
)

const sessionPrefix = "raggate:session:"

// RedisStore persists sessions in Redis as JSON arrays with a TTL that is
// refreshed on every append. Use it when the gateway runs more than one
// replica or must survive restarts.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps an existing client. A zero TTL means 24h.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return sessionPrefix + sessionID
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.rdb.Set(ctx, s.key(id), "[]", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]types.ChatMessage, error) {
	data, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var history []types.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return history, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...types.ChatMessage) error {
	history, err := s.History(ctx, sessionID)
	if err != nil && err != ErrNotFound {
		return err
	}
	history = append(history, msgs...)
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
