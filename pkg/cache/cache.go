// Package cache stores finished assignment results so that a repeated run on
// identical inputs can skip the solver. Two backends are provided: an
// in-process LRU and Redis.
package cache

import (
	"context"
	"errors"
	"time"

	"trafficassign/pkg/config"
)

// Backend types for cache implementations.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Standard errors returned by cache operations.
var (
	// ErrKeyNotFound is returned when a requested key does not exist in the cache.
	ErrKeyNotFound = errors.New("key not found")
	// ErrCacheClosed is returned when an operation is attempted on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns ErrKeyNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl <= 0 means the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// DeleteByPrefix removes every key starting with prefix and returns the count.
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats holds statistics about a cache's state.
type Stats struct {
	TotalKeys   int64
	Hits        int64
	Misses      int64
	HitRate     float64
	MemoryBytes int64
	Backend     string
}

// Options contains configuration parameters for creating a Cache instance.
type Options struct {
	Backend    string
	DefaultTTL time.Duration

	// memory
	MaxEntries int

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	DialTimeout   time.Duration
}

// DefaultOptions returns a new Options struct with sensible default values.
func DefaultOptions() *Options {
	return &Options{
		Backend:       BackendMemory,
		DefaultTTL:    time.Hour,
		MaxEntries:    64,
		RedisAddr:     "localhost:6379",
		RedisPoolSize: 4,
		DialTimeout:   5 * time.Second,
	}
}

// FromConfig создаёт опции из конфигурации
func FromConfig(cfg *config.CacheConfig) *Options {
	opts := DefaultOptions()
	opts.Backend = cfg.Driver
	if cfg.DefaultTTL > 0 {
		opts.DefaultTTL = cfg.DefaultTTL
	}
	if cfg.MaxEntries > 0 {
		opts.MaxEntries = cfg.MaxEntries
	}
	if cfg.Host != "" {
		opts.RedisAddr = cfg.Address()
	}
	opts.RedisPassword = cfg.Password
	opts.RedisDB = cfg.DB
	return opts
}

// New создаёт кэш на основе опций
func New(opts *Options) (Cache, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	switch opts.Backend {
	case BackendRedis:
		return NewRedisCache(opts)
	default:
		return NewMemoryCache(opts), nil
	}
}
