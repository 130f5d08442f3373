// Package cache provides the key/value cache used for commit summaries.
// The cache is never authoritative: callers treat every error as a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache stores string values with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Config selects and configures a Cache implementation.
type Config struct {
	Type     string // "memory", "redis" or "none"
	Addr     string
	Username string
	Password string
	DB       int
}

// New builds the Cache named by cfg.Type. "none" and "" return a cache that always misses.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Type {
	case "", "none":
		return Noop{}, nil
	case "memory":
		return NewMemory(time.Hour, 10*time.Minute), nil
	case "redis":
		r := NewRedis(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %q", cfg.Type)
	}
}

// Memory is an in-process Cache backed by go-cache.
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates a Memory cache. defaultTTL applies when Set is called
// with a zero ttl; cleanup is the expired-entry sweep interval.
func NewMemory(defaultTTL, cleanup time.Duration) *Memory {
	return &Memory{c: gocache.New(defaultTTL, cleanup)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", ErrMiss
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrMiss
	}
	return s, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

// Redis is a Cache shared across processes.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis cache. The connection is established lazily.
func NewRedis(opts *redis.Options) *Redis {
	return &Redis{client: redis.NewClient(opts)}
}

// Ping verifies the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, error)              { return "", ErrMiss }
func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }

var (
	_ Cache = (*Memory)(nil)
	_ Cache = (*Redis)(nil)
	_ Cache = Noop{}
)
