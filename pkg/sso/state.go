package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TransientStateStore records in-flight login correlation state. Consume is a
// check-and-delete: a given key matches exactly once, so replayed OAuth state
// tokens and SAML request IDs never validate a second time.
type TransientStateStore interface {
	Put(ctx context.Context, key string, record *TransientState) error
	Consume(ctx context.Context, key string) (*TransientState, bool)
	Sweep(ctx context.Context) int
}

// MemoryStateStore is the default single-process implementation.
type MemoryStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*TransientState
	nowFn   func() time.Time
}

// NewMemoryStateStore creates a store whose records expire after ttl.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryStateStore{
		ttl:     ttl,
		records: make(map[string]*TransientState),
		nowFn:   time.Now,
	}
}

// Put records a transient entry under key.
func (s *MemoryStateStore) Put(_ context.Context, key string, record *TransientState) error {
	if key == "" {
		return fmt.Errorf("state key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = record
	return nil
}

// Consume atomically removes and returns the record for key. Expired records
// are treated as absent.
func (s *MemoryStateStore) Consume(_ context.Context, key string) (*TransientState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil, false
	}
	delete(s.records, key)
	if s.nowFn().Sub(record.CreatedAt) > s.ttl {
		return nil, false
	}
	return record, true
}

// Sweep evicts expired records and returns how many were removed.
func (s *MemoryStateStore) Sweep(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	removed := 0
	for key, record := range s.records {
		if now.Sub(record.CreatedAt) > s.ttl {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live records.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

const redisStatePrefix = "sso:state:"

// RedisStateStore shares transient state across instances. GETDEL gives the
// same consume-exactly-once guarantee as the in-memory store.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore verifies connectivity and returns the store.
func NewRedisStateStore(redisURL string, ttl time.Duration) (*RedisStateStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStateStore{client: client, ttl: ttl}, nil
}

// Put stores the record with the configured TTL.
func (s *RedisStateStore) Put(ctx context.Context, key string, record *TransientState) error {
	if key == "" {
		return fmt.Errorf("state key is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal transient state: %w", err)
	}
	if err := s.client.Set(ctx, redisStatePrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes the record.
func (s *RedisStateStore) Consume(ctx context.Context, key string) (*TransientState, bool) {
	data, err := s.client.GetDel(ctx, redisStatePrefix+key).Result()
	if err != nil {
		return nil, false
	}
	var record TransientState
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, false
	}
	return &record, true
}

// Sweep is a no-op for Redis; TTLs expire records server-side.
func (s *RedisStateStore) Sweep(_ context.Context) int {
	return 0
}

// Close releases the underlying Redis connection pool.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
