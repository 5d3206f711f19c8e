package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a token has no stored session.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned when a session has been idle longer than its TTL.
var ErrExpired = errors.New("session expired")

// Store persists encoded sessions by token.
type Store interface {
	Load(ctx context.Context, token string) ([]byte, error)
	Save(ctx context.Context, token string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps sessions in process. It suits single-instance and test
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, token string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[token]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expires.IsZero() && !m.clock().Before(entry.expires) {
		delete(m.entries, token)
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.data...), nil
}

func (m *MemoryStore) Save(_ context.Context, token string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		entry.expires = m.clock().Add(ttl)
	}
	m.entries[token] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}

// RedisStore keeps sessions in Redis so several server instances can share
// them.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

func (r *RedisStore) Load(ctx context.Context, token string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisStore) Save(ctx context.Context, token string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(token), data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token)).Err()
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}
