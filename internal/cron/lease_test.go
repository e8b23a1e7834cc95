package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLeases struct {
	holders map[string]string
	ttls    map[string]time.Duration
	err     error
}

func newMemoryLeases() *memoryLeases {
	return &memoryLeases{holders: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLeases) AcquireLease(_ context.Context, name, token string, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, taken := m.holders[name]; taken {
		return false, nil
	}
	m.holders[name] = token
	m.ttls[name] = ttl
	return true, nil
}

func (m *memoryLeases) ReleaseLease(_ context.Context, name, token string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.holders[name] != token {
		return false, nil
	}
	delete(m.holders, name)
	return true, nil
}

func TestRedisLeaseSingleHolder(t *testing.T) {
	store := newMemoryLeases()
	a, err := NewRedisLease(store, "cron-worker", 0)
	require.NoError(t, err)
	b, err := NewRedisLease(store, "cron-worker", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 55*time.Minute, store.ttls["cron-worker"])

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Release(ctx))
	require.Contains(t, store.holders, "cron-worker")

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLeaseReleaseAfterExpiry(t *testing.T) {
	store := newMemoryLeases()
	lease, err := NewRedisLease(store, "cron-worker", time.Minute)
	require.NoError(t, err)
	ok, err := lease.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// expired and taken over by another worker
	store.holders["cron-worker"] = "someone-else"
	require.NoError(t, lease.Release(context.Background()))
	require.Equal(t, "someone-else", store.holders["cron-worker"])
}

func TestRedisLeaseSurfacesStoreErrors(t *testing.T) {
	store := newMemoryLeases()
	store.err = errors.New("connection refused")
	lease, err := NewRedisLease(store, "cron-worker", time.Minute)
	require.NoError(t, err)
	_, err = lease.Acquire(context.Background())
	require.ErrorContains(t, err, "connection refused")

	_, err = NewRedisLease(nil, "x", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLease(store, "", time.Minute)
	require.Error(t, err)
}
