package catalog

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"tagstation/internal/faults"
)

const claimRetryDelay = 50 * time.Millisecond

// ClaimLock serializes bottle claims between processes that share one
// catalog file. It is held from FirstUntaggedBottle until MarkTagged.
type ClaimLock struct {
	lock *flock.Flock
}

// ClaimLock returns the claim lock that sits next to the database file.
func (s *Store) ClaimLock() *ClaimLock {
	return &ClaimLock{lock: flock.New(s.path + ".claim.lock")}
}

// Acquire blocks until the lock is held or ctx ends.
func (c *ClaimLock) Acquire(ctx context.Context) error {
	ok, err := c.lock.TryLockContext(ctx, claimRetryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return faults.Wrap(faults.ErrStore, component, "claim", "acquire claim lock", err)
	}
	if !ok {
		return faults.Wrap(faults.ErrStore, component, "claim", "claim lock unavailable", nil)
	}
	return nil
}

// TryAcquire takes the lock only if it is free.
func (c *ClaimLock) TryAcquire() (bool, error) {
	ok, err := c.lock.TryLock()
	if err != nil {
		return false, faults.Wrap(faults.ErrStore, component, "claim", "acquire claim lock", err)
	}
	return ok, nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (c *ClaimLock) Release() error {
	if !c.lock.Locked() {
		return nil
	}
	if err := c.lock.Unlock(); err != nil {
		return faults.Wrap(faults.ErrStore, component, "claim", "release claim lock", err)
	}
	return nil
}
