// Package redis persists analytics snapshots and per-chain ownership locks.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

// ErrLockNotHeld is returned when refreshing a lock owned by someone else.
var ErrLockNotHeld = errors.New("redis lock not held")

// Client wraps Redis operations for analytics snapshots and chain locks.
type Client struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
	// SnapshotTTL expires stale snapshots; 0 keeps them forever.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, prefix: keyPrefix(cfg.KeyPrefix), ttl: cfg.SnapshotTTL}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func keyPrefix(p string) string {
	if p == "" {
		return "fundwatch"
	}
	return p
}

func analyticsKey(prefix string, chainID domain.ChainID) string {
	return fmt.Sprintf("%s:analytics:%s", prefix, chainID)
}

func lockKey(prefix string, chainID domain.ChainID) string {
	return fmt.Sprintf("%s:owner:%s", prefix, chainID)
}

// SaveAnalytics stores the serialized analytics window for a chain.
func (c *Client) SaveAnalytics(ctx context.Context, chainID domain.ChainID, data []byte) error {
	if err := c.rdb.Set(ctx, analyticsKey(c.prefix, chainID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set analytics snapshot: %w", err)
	}
	return nil
}

// LoadAnalytics returns the stored snapshot; found is false when none exists.
func (c *Client) LoadAnalytics(ctx context.Context, chainID domain.ChainID) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, analyticsKey(c.prefix, chainID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get analytics snapshot: %w", err)
	}
	return data, true, nil
}

// only the owner may extend or drop a lock
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// AcquireLock claims ownership of a chain for owner until ttl elapses.
func (c *Client) AcquireLock(ctx context.Context, chainID domain.ChainID, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(c.prefix, chainID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// RefreshLock extends the TTL of a lock held by owner.
func (c *Client) RefreshLock(ctx context.Context, chainID domain.ChainID, owner string, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, c.rdb, []string{lockKey(c.prefix, chainID)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chain %s: %w", chainID, ErrLockNotHeld)
	}
	return nil
}

// ReleaseLock releases a lock held by owner. Releasing a lock owned by
// someone else is a no-op.
func (c *Client) ReleaseLock(ctx context.Context, chainID domain.ChainID, owner string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{lockKey(c.prefix, chainID)}, owner).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
