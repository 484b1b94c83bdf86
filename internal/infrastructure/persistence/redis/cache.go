// Package redis implements the Redis read-through cache for student fee accounts.
//
// Key components:
//   - Cache: the Redis connection and its settings
//   - AccountCache: fees.RecordCache storing versioned account entries
//   - CachedRepository: fees.Repository decorator that reads through the cache
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string // empty if no auth
	DB       int

	// Pool
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration

	// MaxRetries is the go-redis retry count for a single command.
	MaxRetries int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AccountTTL is how long an account entry stays cached.
	AccountTTL time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  time.Second,
		MaxRetries:   1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		AccountTTL:   DefaultAccountTTL,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		PoolTimeout:  c.PoolTimeout,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// ErrCacheConnection is returned by NewCache when Redis cannot be reached.
var ErrCacheConnection = errors.New("cache: connection failed")

const (
	// EntrySchema is bumped whenever the cached entry layout changes, so
	// instances on different releases never read each other's entries.
	EntrySchema = 1

	// DefaultAccountTTL applies when Config.AccountTTL is zero.
	DefaultAccountTTL = 10 * time.Minute

	accountKeyPrefix = "fees:account:v"
)

// AccountKey returns the cache key for a student's account entry.
func AccountKey(studentID string) string {
	return accountKeyPrefix + strconv.Itoa(EntrySchema) + ":" + studentID
}

// Cache owns the Redis connection shared by the account cache.
type Cache struct {
	client redis.UniversalClient
	config Config
}

// NewCache connects to Redis and pings it within DialTimeout.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr(), err)
	}

	return NewCacheWithClient(client, cfg), nil
}

// NewCacheWithClient wraps an existing client. It does not ping.
func NewCacheWithClient(client redis.UniversalClient, cfg Config) *Cache {
	return &Cache{client: client, config: cfg}
}

// Config returns the configuration the cache was created with.
func (c *Cache) Config() Config {
	return c.config
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) accountTTL() time.Duration {
	if c.config.AccountTTL > 0 {
		return c.config.AccountTTL
	}
	return DefaultAccountTTL
}
