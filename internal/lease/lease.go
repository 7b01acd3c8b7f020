// Package lease provides per-prospect advisory leases.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/store"
)

// Lease grants at most one owner exclusive work on a key at a time. A lease
// older than its ttl may be taken over by a new owner.
type Lease interface {
	Acquire(ctx context.Context, id, owner string, ttl time.Duration) (bool, error)
	// Renew restarts the ttl of a lease owner still holds. It reports false
	// once the lease was released or taken over.
	Renew(ctx context.Context, id, owner string) (bool, error)
	Release(ctx context.Context, id, owner string) error
}

// StoreLease implements Lease as a compare-and-swap on the prospect's
// locked_at/locked_by columns.
type StoreLease struct {
	store store.LeaseStore
	now   func() time.Time
}

// NewStoreLease creates a lease backed by the prospect store.
func NewStoreLease(s store.LeaseStore) *StoreLease {
	return &StoreLease{store: s, now: time.Now}
}

func (l *StoreLease) Acquire(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	ok, err := l.store.AcquireLock(ctx, id, owner, now, now.Add(-ttl))
	if err != nil {
		return false, eris.Wrapf(err, "lease: acquire %s", id)
	}
	return ok, nil
}

func (l *StoreLease) Renew(ctx context.Context, id, owner string) (bool, error) {
	ok, err := l.store.RenewLock(ctx, id, owner, l.now())
	if err != nil {
		return false, eris.Wrapf(err, "lease: renew %s", id)
	}
	return ok, nil
}

// Release clears the lease if owner still holds it. Releasing a lease that
// was taken over is not an error.
func (l *StoreLease) Release(ctx context.Context, id, owner string) error {
	if _, err := l.store.ReleaseLock(ctx, id, owner); err != nil {
		return eris.Wrapf(err, "lease: release %s", id)
	}
	return nil
}

type holder struct {
	owner string
	at    time.Time
}

// MemoryLease is a single-process Lease.
type MemoryLease struct {
	mu    sync.Mutex
	holds map[string]holder
	now   func() time.Time
}

// NewMemoryLease creates an empty in-memory lease table.
func NewMemoryLease() *MemoryLease {
	return &MemoryLease{holds: make(map[string]holder), now: time.Now}
}

func (l *MemoryLease) Acquire(_ context.Context, id, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.holds[id]; ok && now.Sub(h.at) < ttl {
		return false, nil
	}
	l.holds[id] = holder{owner: owner, at: now}
	return true, nil
}

func (l *MemoryLease) Renew(_ context.Context, id, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[id]
	if !ok || h.owner != owner {
		return false, nil
	}
	l.holds[id] = holder{owner: owner, at: l.now()}
	return true, nil
}

func (l *MemoryLease) Release(_ context.Context, id, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.holds[id]; ok && h.owner == owner {
		delete(l.holds, id)
	}
	return nil
}

// Held reports whether any owner holds id.
func (l *MemoryLease) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.holds[id]
	return ok
}
