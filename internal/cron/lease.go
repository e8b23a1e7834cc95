package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lease elects the single worker allowed to run a cycle.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	AcquireLease(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, token string) (bool, error)
}

// RedisLease holds a named lease with a fresh token per acquisition.
type RedisLease struct {
	store leaseStore
	name  string
	ttl   time.Duration
	token string
}

func NewRedisLease(store leaseStore, name string, ttl time.Duration) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("cron: lease store is required")
	}
	if name == "" {
		return nil, errors.New("cron: lease name is required")
	}
	if ttl <= 0 {
		ttl = 55 * time.Minute
	}
	return &RedisLease{store: store, name: name, ttl: ttl}, nil
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.AcquireLease(ctx, l.name, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.name, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release is a no-op when this worker does not hold the lease. Losing the
// lease to expiry is not an error.
func (l *RedisLease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.ReleaseLease(ctx, l.name, token); err != nil {
		return fmt.Errorf("release lease %s: %w", l.name, err)
	}
	return nil
}
