// Package session tracks anonymous cart sessions. A session lives in
// Redis with a sliding TTL matching the cart idle window; losing Redis
// degrades to cart expiry, never to oversell.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

type Store interface {
	// New mints a session ID and registers it with the TTL.
	New(ctx context.Context) (string, error)
	// Touch extends the session's TTL; ErrSessionNotFound when expired.
	Touch(ctx context.Context, sessionID string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(sessionID string) string {
	return "cart-session:" + sessionID
}

func (s *RedisStore) New(ctx context.Context) (string, error) {
	id := uuid.New().String()
	if err := s.client.Set(ctx, key(id), "1", s.ttl).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *RedisStore) Touch(ctx context.Context, sessionID string) error {
	ok, err := s.client.Expire(ctx, key(sessionID), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// MemoryStore is the test fake.
type MemoryStore struct {
	sessions map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]bool)}
}

func (s *MemoryStore) New(ctx context.Context) (string, error) {
	id := uuid.New().String()
	s.sessions[id] = true
	return id, nil
}

func (s *MemoryStore) Touch(ctx context.Context, sessionID string) error {
	if !s.sessions[sessionID] {
		return ErrSessionNotFound
	}
	return nil
}
