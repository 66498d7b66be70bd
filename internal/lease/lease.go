// Package lease provides per-connection mutual exclusion for sync runs. A lease
// expires on its own so a crashed run never blocks the next one for longer than its TTL.
package lease

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLeaseHeld = errors.New("lease is held by another run")
	// ErrLeaseLost means the lease expired and was taken, or was removed, while held.
	ErrLeaseLost = errors.New("lease is no longer owned by this run")
)

type Lease interface {
	Key() string
	// Release gives the lease up if it is still owned by this holder.
	Release(ctx context.Context) error
	// Extend pushes the expiry to ttl from now. It fails with ErrLeaseLost when
	// another holder owns the key or the lease is gone.
	Extend(ctx context.Context, ttl time.Duration) error
}

type Locker interface {
	// Acquire returns ErrLeaseHeld while another holder owns an unexpired lease on key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
