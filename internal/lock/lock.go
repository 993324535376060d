// Package lock provides advisory per-source run locks.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLocked indicates another run holds the lock.
var ErrLocked = errors.New("locked by another run")

// Locker acquires named leases. The returned release func is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Noop never contends. It is used when no lock backend is configured.
type Noop struct{}

// Acquire always succeeds.
func (Noop) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
