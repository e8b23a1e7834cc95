package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ClaimStore records first sightings of an id within a scope.
type ClaimStore interface {
	Claim(ctx context.Context, scope, id string, ttl time.Duration) (bool, error)
	Claimed(ctx context.Context, scope, id string) (bool, error)
}

// IdempotencyGuard remembers the signatures of applied webhooks so exact
// redeliveries skip the database entirely. Keys are written only after the
// payment commits.
type IdempotencyGuard struct {
	store ClaimStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store ClaimStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency guard: claim store is required")
	case ttl < 0:
		return nil, errors.New("idempotency guard: ttl must not be negative")
	case scope == "":
		return nil, errors.New("idempotency guard: scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Seen reports whether key belongs to a webhook that was already applied.
func (g *IdempotencyGuard) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("idempotency guard: empty key")
	}
	seen, err := g.store.Claimed(ctx, g.scope, key)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", g.scope, err)
	}
	return seen, nil
}

// Remember marks key as applied for the guard's ttl.
func (g *IdempotencyGuard) Remember(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("idempotency guard: empty key")
	}
	if _, err := g.store.Claim(ctx, g.scope, key, g.ttl); err != nil {
		return fmt.Errorf("claim %s: %w", g.scope, err)
	}
	return nil
}
