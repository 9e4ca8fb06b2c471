package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobmesh/identity-middleware/pkg/config"
)

const keyPrefix = "identity:session:v1:"

// RedisStore keeps session state in Redis so flows survive server restarts
// and expire without a sweeper.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisStore creates a session store with the given TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(kind Kind, id string) string {
	return keyPrefix + string(kind) + ":" + id
}

// Put writes the state, resetting its TTL.
func (s *RedisStore) Put(ctx context.Context, state *State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(state.Kind, state.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get returns the state or ErrSessionNotFound.
func (s *RedisStore) Get(ctx context.Context, kind Kind, id string) (*State, error) {
	payload, err := s.client.Get(ctx, sessionKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

// Delete removes the state.
func (s *RedisStore) Delete(ctx context.Context, kind Kind, id string) error {
	if err := s.client.Del(ctx, sessionKey(kind, id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
