// Package redis provides the Redis client component used for query and
// embedding caches.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisopts "github.com/kart-io/vectorag/pkg/options/redis"
)

// Client wraps a go-redis client configured from options.
type Client struct {
	client *goredis.Client
	opts   *redisopts.Options
}

// New creates a new Redis client from the provided options.
func New(opts *redisopts.Options) (*Client, error) {
	return NewWithContext(context.Background(), opts)
}

// NewWithContext creates a new Redis client and verifies connectivity with
// a ping bounded by the given context.
func NewWithContext(ctx context.Context, opts *redisopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolTimeout:  opts.PoolTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Client{client: rdb, opts: opts}, nil
}

// Ping checks if the connection to Redis is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Client returns the underlying go-redis client.
func (c *Client) Client() *goredis.Client {
	return c.client
}

// Options returns the options used by this client.
func (c *Client) Options() *redisopts.Options {
	return c.opts
}
