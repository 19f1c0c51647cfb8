// Package runlock guards against two concurrent simulation runs advancing
// the same entity at once, using a Redis SETNX-style lock keyed by entity
// (SPEC_FULL.md §5, §10.6).
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/timelineerr"
)

// Locker acquires and releases per-entity run locks.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Locker backed by client. ttl bounds how long a lock
// survives a crashed holder before another run may proceed.
func New(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

func lockKey(kind simstate.EntityKind, entityID uuid.UUID) string {
	return fmt.Sprintf("timeline:runlock:%s:%s", kind, entityID)
}

// Acquire takes the lock for (kind, entityID), holding the caller-supplied
// token as the value so Release can verify ownership before deleting it.
// It returns a Duplicate-category error (code DUPLICATE, HTTP 409) if
// another run already holds it.
func (l *Locker) Acquire(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, token string) error {
	ok, err := l.client.SetNX(ctx, lockKey(kind, entityID), token, l.ttl).Result()
	if err != nil {
		return timelineerr.Wrap(timelineerr.ErrStoreError, "run lock acquire failed", err)
	}
	if !ok {
		return timelineerr.NewDuplicate("a run is already in progress for %s %s", kind, entityID)
	}
	return nil
}

// Release drops the lock for (kind, entityID) if and only if token still
// matches the current holder, so a run can never release a lock it does
// not own (e.g. after its own TTL already expired and another run took it).
func (l *Locker) Release(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, token string) error {
	// Compare and delete run as one Lua script, so no other run can take the
	// lock between the ownership check and the delete.
	const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`
	err := l.client.Eval(ctx, releaseScript, []string{lockKey(kind, entityID)}, token).Err()
	if err != nil && err != redis.Nil {
		return timelineerr.Wrap(timelineerr.ErrStoreError, "run lock release failed", err)
	}
	return nil
}
