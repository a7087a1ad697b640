// Package ratelimit implements a fixed-window counter per (actor, action).
// The window starts at the first call and every call inside it counts,
// including the denied ones.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"listing_intake/logging"
)

const (
	ActionListingCreate = "listing_create"
	ActionChatInitiate  = "chat_initiate"
)

// Quota is the number of calls allowed per window.
type Quota struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// DefaultQuotas are used for actions without a configured quota.
var DefaultQuotas = map[string]Quota{
	ActionListingCreate: {Limit: 10, Window: time.Hour},
	ActionChatInitiate:  {Limit: 20, Window: time.Hour},
}

// Decision is the outcome of one Consume call.
type Decision struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// Store increments the counter for (actorID, action) atomically. A window
// whose reset time is at or before now restarts at 1 with resetAt
// now+window.
type Store interface {
	Increment(ctx context.Context, actorID, action string, now time.Time, window time.Duration) (count int, resetAt time.Time, err error)
}

type Limiter struct {
	store  Store
	quotas map[string]Quota
	now    func() time.Time
}

func New(store Store, quotas map[string]Quota) *Limiter {
	merged := make(map[string]Quota, len(DefaultQuotas)+len(quotas))
	for action, q := range DefaultQuotas {
		merged[action] = q
	}
	for action, q := range quotas {
		merged[action] = q
	}
	return &Limiter{
		store:  store,
		quotas: merged,
		now:    time.Now,
	}
}

func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Quota returns the configured quota for action.
func (l *Limiter) Quota(action string) (Quota, bool) {
	q, ok := l.quotas[action]
	return q, ok
}

// Consume counts one call and reports whether it fits in the window. A store
// failure denies the call with a reset one window from now.
func (l *Limiter) Consume(ctx context.Context, actorID, action string, limit int, window time.Duration) Decision {
	now := l.now()
	count, resetAt, err := l.store.Increment(ctx, actorID, action, now, window)
	if err != nil {
		logging.Error("rate limit store failed", "action", action, "actor", actorID, "err", err)
		return Decision{Allowed: false, ResetAt: now.Add(window)}
	}
	return Decision{
		Allowed: count <= limit,
		Count:   count,
		ResetAt: resetAt,
	}
}

// ConsumeQuota is Consume with the configured quota for action.
func (l *Limiter) ConsumeQuota(ctx context.Context, actorID, action string) (Decision, error) {
	q, ok := l.quotas[action]
	if !ok {
		return Decision{}, fmt.Errorf("ratelimit: no quota for action %q", action)
	}
	return l.Consume(ctx, actorID, action, q.Limit, q.Window), nil
}
