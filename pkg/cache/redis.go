package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/eventflow/eventflow/internal/model"
	eferrors "github.com/eventflow/eventflow/pkg/errors"
)

// RedisConfig configures the Redis cache tier.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all cache keys (e.g., "eventflow:cache:")
	Prefix string

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int

	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "eventflow:cache:",
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// envelope is the wire shape stored per key. WrittenAt is carried for
// operators inspecting keys directly; expiry itself is delegated to the
// Redis TTL.
type envelope struct {
	Events    []model.EventRecord `json:"events"`
	WrittenAt time.Time           `json:"written_at"`
}

// RedisStore is a remote Store backed by Redis. TTL enforcement is
// native to Redis; capacity/LRU behavior comes from the server's
// maxmemory policy rather than client bookkeeping. A payload that fails
// to decode is deleted and reported as a miss, never as an error.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, eferrors.Wrap(err, eferrors.CodeStoreUnavailable, "failed to connect to Redis")
	}

	return &RedisStore{cfg: cfg, client: client, logger: logger}, nil
}

func (s *RedisStore) key(k string) string {
	return s.cfg.Prefix + k
}

// Set stores events under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, events []model.EventRecord, ttl time.Duration) error {
	if events == nil {
		events = []model.EventRecord{}
	}

	data, err := json.Marshal(envelope{Events: events, WrittenAt: time.Now()})
	if err != nil {
		return eferrors.Wrap(err, eferrors.CodeInvalidInput, "failed to marshal cache entry")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return eferrors.Wrap(err, eferrors.CodeStoreUnavailable, "failed to write cache entry")
	}
	return nil
}

// Get returns the cached events for key. Unreachable backend and
// corrupt payloads both surface as a miss; corruption additionally
// deletes the entry and logs a warning.
func (s *RedisStore) Get(ctx context.Context, key string) ([]model.EventRecord, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		corrupt := eferrors.CacheCorrupt(key, err)
		s.logger.Warn("dropping corrupt cache entry", "key", key, "error", corrupt)
		s.client.Del(ctx, s.key(key))
		return nil, false
	}
	if env.Events == nil {
		env.Events = []model.EventRecord{}
	}
	return env.Events, true
}

// Has reports whether key exists.
func (s *RedisStore) Has(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	n, err := s.client.Exists(ctx, s.key(key)).Result()
	return err == nil && n > 0
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return eferrors.Wrap(err, eferrors.CodeStoreUnavailable, "failed to delete cache entry")
	}
	return nil
}

// Clear removes every key under the configured prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	iter := s.client.Scan(ctx, 0, s.cfg.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return eferrors.Wrap(err, eferrors.CodeStoreUnavailable, "failed to clear cache")
		}
	}
	if err := iter.Err(); err != nil {
		return eferrors.Wrap(err, eferrors.CodeStoreUnavailable, "failed to scan cache keys")
	}
	return nil
}

// Size counts keys under the configured prefix.
func (s *RedisStore) Size(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	count := 0
	iter := s.client.Scan(ctx, 0, s.cfg.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
