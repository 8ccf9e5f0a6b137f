package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP LOCK
// ══════════════════════════════════════════════════════════════════════════════

// keyRoleSweepLock guards the bulk role transition.
const keyRoleSweepLock = PrefixLock + "role_sweep"

// SweepLock is a SETNX lock with an owner token. The TTL bounds how long a
// crashed holder can block the next sweep.
type SweepLock struct {
	cache *Cache
	key   string
	ttl   time.Duration
}

// NewSweepLock creates the role sweep lock.
func NewSweepLock(cache *Cache, ttl time.Duration) *SweepLock {
	return &SweepLock{cache: cache, key: keyRoleSweepLock, ttl: ttl}
}

// Acquire takes the lock or returns shared.ErrSweepInProgress.
// The returned func releases the lock only if this holder still owns it.
func (l *SweepLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, shared.ErrSweepInProgress
	}

	release := func(ctx context.Context) error {
		if _, err := l.cache.CompareAndDelete(ctx, l.key, token); err != nil {
			return fmt.Errorf("failed to release sweep lock: %w", err)
		}
		return nil
	}
	return release, nil
}
