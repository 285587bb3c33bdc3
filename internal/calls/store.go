package calls

import (
	"context"
	"time"
)

// Store is the session table plus the per-user busy index. Implementations
// must update both atomically.
//
// Terminal sessions are kept as tombstones until pruned (or expired) so that
// late commands observe ErrInvalidTransition rather than ErrNotFound.
type Store interface {
	Get(ctx context.Context, callID string) (Session, error)

	// ActiveFor returns the user's active session or ErrNotFound.
	ActiveFor(ctx context.Context, userID string) (Session, error)

	// Create inserts a pending session and marks both participants busy.
	// Fails with *BusyError if either participant already has an active one.
	Create(ctx context.Context, s Session) error

	// CompareAndSwap replaces the session if its stored status equals
	// expected. A terminal next status releases both busy entries that still
	// point at this call.
	CompareAndSwap(ctx context.Context, expected Status, next Session) error

	// Active lists every session in an active status.
	Active(ctx context.Context) ([]Session, error)

	// Prune drops terminal tombstones that ended before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}
