// Package idempotency remembers which transaction a client idempotency key
// produced, so a replayed request returns the original result.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wallet:idempotency:v1:"

// ErrKeyConflict means the key is already bound to a different transaction.
var ErrKeyConflict = errors.New("idempotency key already used")

type Store interface {
	// Get returns the transaction id bound to key, if any.
	Get(ctx context.Context, key string) (uuid.UUID, bool, error)
	// Put binds key to id. Binding the same id twice is a no-op.
	Put(ctx context.Context, key string, id uuid.UUID) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (uuid.UUID, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency lookup: corrupt value for %q: %w", key, err)
	}
	return id, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, id uuid.UUID) error {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, id.String(), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("idempotency reservation: %w", err)
	}
	if ok {
		return nil
	}

	existing, found, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if found && existing != id {
		return fmt.Errorf("%w: %q", ErrKeyConflict, key)
	}
	return nil
}

type entry struct {
	id      uuid.UUID
	expires time.Time
}

// MemoryStore is the single-process Store used when Redis is not configured.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]entry
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, keys: make(map[string]entry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	return e.id, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.lookup(key); ok {
		if e.id != id {
			return fmt.Errorf("%w: %q", ErrKeyConflict, key)
		}
		return nil
	}
	s.keys[key] = entry{id: id, expires: s.now().Add(s.ttl)}
	return nil
}

// lookup drops expired entries. Callers hold s.mu.
func (s *MemoryStore) lookup(key string) (entry, bool) {
	e, ok := s.keys[key]
	if !ok {
		return entry{}, false
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		delete(s.keys, key)
		return entry{}, false
	}
	return e, true
}
