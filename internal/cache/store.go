package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store caches opaque payloads by key.
type Store interface {
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key this store owns.
	Clear(ctx context.Context) error
}

// MemoryStore is a Store over the in-process LRU.
type MemoryStore struct {
	lru *LRU[string, []byte]
}

// NewMemoryStore creates a MemoryStore holding up to capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{lru: NewLRU[string, []byte](capacity, 0)}
}

// SetClock overrides the time source (for tests).
func (m *MemoryStore) SetClock(now func() time.Time) { m.lru.SetClock(now) }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.lru.PutTTL(key, val, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.lru.Delete(key)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.lru.Clear()
	return nil
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore is a Store shared across instances. Keys are namespaced by prefix.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, keyPrefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, keyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client. The caller keeps ownership of it.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "pulse:cache:"
	}
	if !strings.HasSuffix(keyPrefix, ":") {
		keyPrefix += ":"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks connectivity (used by readiness checks).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Tiered reads through a local L1 and a shared L2. L2 failures are logged and
// treated as misses so the caller falls back to the upstream.
type Tiered struct {
	l1     Store
	l2     Store
	l1TTL  time.Duration
	logger zerolog.Logger
}

// NewTiered combines two stores. l1TTL bounds how long an L2 hit lives locally.
func NewTiered(l1, l2 Store, l1TTL time.Duration, logger zerolog.Logger) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1TTL: l1TTL, logger: logger.With().Str("component", "cache").Logger()}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := t.l1.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	v, ok, err := t.l2.Get(ctx, key)
	if err != nil {
		t.logger.Warn().Err(err).Str("key", key).Msg("L2 cache read failed")
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	_ = t.l1.Set(ctx, key, v, t.l1TTL)
	return v, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := t.l2.Set(ctx, key, val, ttl); err != nil {
		t.logger.Warn().Err(err).Str("key", key).Msg("L2 cache write failed")
	}
	l1TTL := t.l1TTL
	if ttl > 0 && (l1TTL == 0 || ttl < l1TTL) {
		l1TTL = ttl
	}
	return t.l1.Set(ctx, key, val, l1TTL)
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	err := t.l2.Delete(ctx, key)
	_ = t.l1.Delete(ctx, key)
	return err
}

func (t *Tiered) Clear(ctx context.Context) error {
	err := t.l2.Clear(ctx)
	_ = t.l1.Clear(ctx)
	return err
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*Tiered)(nil)
)
