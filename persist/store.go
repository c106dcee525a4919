package persist

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSnapshotNotFound is returned when no snapshot exists for the
// requested document and body.
var ErrSnapshotNotFound = errors.New("persist: snapshot not found")

// Store defines the interface for snapshot storage backends.
type Store interface {
	// Save writes a snapshot, replacing any previous one for the same
	// document and body.
	Save(ctx context.Context, snap *Snapshot) error

	// Load reads the snapshot for a document and body. Returns
	// ErrSnapshotNotFound when none exists.
	Load(ctx context.Context, document, body string) (*Snapshot, error)

	// Delete removes the snapshot for a document and body. Deleting a
	// missing snapshot is not an error.
	Delete(ctx context.Context, document, body string) error

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore is an in-process Store, used for tests and for documents
// that keep identity state inline in their own file format.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*Snapshot)}
}

// Save writes a snapshot, replacing any previous one.
func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[memKey(snap.Document, snap.Body)] = snap
	return nil
}

// Load reads the snapshot for a document and body.
func (s *MemoryStore) Load(_ context.Context, document, body string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[memKey(document, body)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return snap, nil
}

// Delete removes the snapshot for a document and body.
func (s *MemoryStore) Delete(_ context.Context, document, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, memKey(document, body))
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func memKey(document, body string) string {
	return document + "\x00" + body
}

// RedisOptions configures the Redis connection for a RedisStore.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// KeyPrefix namespaces all snapshot keys. Defaults to "identity".
	KeyPrefix string

	// TTL expires snapshots after the given duration. Zero keeps them
	// until deleted.
	TTL time.Duration

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisStore implements Store using go-redis/v9. Snapshots are stored as
// JSON under one key per document and body, so concurrent saves of
// different bodies never contend.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed snapshot store with the given options.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "identity"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: opts.KeyPrefix, ttl: opts.TTL}, nil
}

// Save writes a snapshot, replacing any previous one.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return err
	}

	key := s.key(snap.Document, snap.Body)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}

	return nil
}

// Load reads the snapshot for a document and body.
func (s *RedisStore) Load(ctx context.Context, document, body string) (*Snapshot, error) {
	key := s.key(document, body)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}

	return Decode(data)
}

// Delete removes the snapshot for a document and body.
func (s *RedisStore) Delete(ctx context.Context, document, body string) error {
	key := s.key(document, body)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key builds the snapshot key with the <prefix>:snapshot:<doc>:<body> pattern.
func (s *RedisStore) key(document, body string) string {
	return fmt.Sprintf("%s:snapshot:%s:%s", s.prefix, document, body)
}
