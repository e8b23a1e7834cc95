package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormship-backend/pkg/config"
)

// memory mirrors the remote scripts closely enough to exercise Client.
type memory struct {
	mu      sync.Mutex
	values  map[string]string
	counts  map[string]int64
	windows map[string]time.Duration
}

func newMemory() *memory {
	return &memory{values: map[string]string{}, counts: map[string]int64{}, windows: map[string]time.Duration{}}
}

func (m *memory) ping(context.Context) error { return nil }

func (m *memory) claim(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

func (m *memory) releaseIf(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memory) hit(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	if m.counts[key] == 1 {
		m.windows[key] = window
	}
	return m.counts[key], nil
}

func (m *memory) exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok, nil
}

func (m *memory) close() error { return nil }

func newTestClient() (*Client, *memory) {
	mem := newMemory()
	return &Client{be: mem, keys: "test"}, mem
}

func TestFixedWindowAllowCountsPerScope(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestClient()

	for i := int64(1); i <= 2; i++ {
		ok, n, err := c.FixedWindowAllow(ctx, "orders:create:u-1", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, n)
	}
	ok, n, err := c.FixedWindowAllow(ctx, "orders:create:u-1", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	ok, _, err = c.FixedWindowAllow(ctx, "orders:create:u-2", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Minute, mem.windows["test:window:orders:create:u-1"])
}

func TestClaimIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient()

	seen, err := c.Claimed(ctx, "payos", "sig-1")
	require.NoError(t, err)
	require.False(t, seen)

	first, err := c.Claim(ctx, "payos", "sig-1", time.Hour)
	require.NoError(t, err)
	require.True(t, first)

	again, err := c.Claim(ctx, "payos", "sig-1", time.Hour)
	require.NoError(t, err)
	require.False(t, again)

	seen, err = c.Claimed(ctx, "payos", "sig-1")
	require.NoError(t, err)
	require.True(t, seen)
	seen, err = c.Claimed(ctx, "payos", "sig-2")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestLeaseReleaseNeedsOwnerToken(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestClient()

	ok, err := c.AcquireLease(ctx, "cron-worker", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.AcquireLease(ctx, "cron-worker", "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	released, err := c.ReleaseLease(ctx, "cron-worker", "owner-b")
	require.NoError(t, err)
	require.False(t, released)
	require.Equal(t, "owner-a", mem.values["test:lease:cron-worker"])

	released, err = c.ReleaseLease(ctx, "cron-worker", "owner-a")
	require.NoError(t, err)
	require.True(t, released)

	_, err = c.AcquireLease(ctx, "cron-worker", "", time.Minute)
	require.Error(t, err)
}

func TestZeroClientReportsNotConnected(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.Ping(context.Background()), errNotConnected)
	_, err := (&Client{}).Claim(context.Background(), "s", "id", 0)
	require.ErrorIs(t, err, errNotConnected)
	require.NoError(t, c.Close())
}

func TestKeyspaceSkipsBlankParts(t *testing.T) {
	require.Equal(t, "dormship:claim:payos:abc", DefaultKeyspace.Claim("payos", " abc "))
	require.Equal(t, "dormship:window:x", DefaultKeyspace.Window("x"))
	require.Equal(t, "dormship:lease", DefaultKeyspace.Lease(""))
}

func TestDialOptions(t *testing.T) {
	opts, err := dialOptions(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		PoolSize:    25,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 25, opts.PoolSize)
	require.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = dialOptions(config.RedisConfig{Address: "localhost:6379", DB: 4})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 4, opts.DB)

	_, err = dialOptions(config.RedisConfig{})
	require.Error(t, err)
	_, err = dialOptions(config.RedisConfig{URL: "http://nope"})
	require.Error(t, err)
}
