// Package redis holds the short-lived coordination state dormship keeps
// outside postgres: webhook claims, mutation windows and the cron lease.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

var errNotConnected = errors.New("redis: client not connected")

// backend is the set of atomic primitives the Client composes. Each call
// maps to one round trip.
type backend interface {
	ping(ctx context.Context) error
	claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	releaseIf(ctx context.Context, key, value string) (bool, error)
	hit(ctx context.Context, key string, window time.Duration) (int64, error)
	exists(ctx context.Context, key string) (bool, error)
	close() error
}

// Client namespaces keys under one keyspace and exposes domain-level calls.
type Client struct {
	be   backend
	keys Keyspace
}

// New dials redis from cfg and pings it before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	rdb := goredis.NewClient(opts)
	c := &Client{be: &remote{rdb: rdb}, keys: DefaultKeyspace}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis.connected")
	return c, nil
}

// dialOptions prefers DORMSHIP_REDIS_URL and lets the discrete settings fill
// whatever the URL leaves at zero.
func dialOptions(cfg config.RedisConfig) (*goredis.Options, error) {
	opts := &goredis.Options{Addr: cfg.Address, Password: cfg.Password}
	switch {
	case cfg.URL != "":
		parsed, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis: url or address is required")
	}

	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) backend() (backend, error) {
	if c == nil || c.be == nil {
		return nil, errNotConnected
	}
	return c.be, nil
}

// Keys returns the keyspace the client writes under.
func (c *Client) Keys() Keyspace {
	return c.keys
}

func (c *Client) Ping(ctx context.Context) error {
	be, err := c.backend()
	if err != nil {
		return err
	}
	return be.ping(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.be == nil {
		return nil
	}
	return c.be.close()
}

// Claim records id under scope for ttl. It returns false when another caller
// claimed the same id first. A zero ttl claims forever.
func (c *Client) Claim(ctx context.Context, scope, id string, ttl time.Duration) (bool, error) {
	be, err := c.backend()
	if err != nil {
		return false, err
	}
	return be.claim(ctx, c.keys.Claim(scope, id), "1", ttl)
}

// Claimed reports whether id is currently claimed under scope.
func (c *Client) Claimed(ctx context.Context, scope, id string) (bool, error) {
	be, err := c.backend()
	if err != nil {
		return false, err
	}
	return be.exists(ctx, c.keys.Claim(scope, id))
}

// FixedWindowAllow counts one hit against scope and reports whether the count
// is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	be, err := c.backend()
	if err != nil {
		return false, 0, err
	}
	count, err := be.hit(ctx, c.keys.Window(scope), window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

// AcquireLease takes the named lease for ttl. The returned token must be
// handed back to ReleaseLease.
func (c *Client) AcquireLease(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	be, err := c.backend()
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, errors.New("redis: lease token is required")
	}
	return be.claim(ctx, c.keys.Lease(name), token, ttl)
}

// ReleaseLease drops the lease when token still owns it. It reports false when
// the lease already expired or passed to someone else.
func (c *Client) ReleaseLease(ctx context.Context, name, token string) (bool, error) {
	be, err := c.backend()
	if err != nil {
		return false, err
	}
	return be.releaseIf(ctx, c.keys.Lease(name), token)
}
