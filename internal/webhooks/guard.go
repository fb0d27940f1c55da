package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventStore is the slice of the redis client the replay guard needs.
type EventStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(provider, eventID string) string
}

// ReplayGuard deduplicates redelivered webhook events per provider. The
// payment reconciler is already idempotent; the guard just avoids re-running
// it for events the provider retried.
type ReplayGuard struct {
	store    EventStore
	ttl      time.Duration
	provider string
}

func NewReplayGuard(store EventStore, ttl time.Duration, provider string) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	return &ReplayGuard{
		store:    store,
		ttl:      ttl,
		provider: provider,
	}, nil
}

// CheckAndMark marks the event as seen and reports whether it already was.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.WebhookEventKey(g.provider, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set replay key: %w", err)
	}
	return !set, nil
}

// Release drops the mark so the provider's retry can be reprocessed after a
// handler failure.
func (g *ReplayGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(g.provider, eventID))
}
