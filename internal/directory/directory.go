// Package directory resolves whether a user id exists. The account service
// owns the users table; this process only reads it.
package directory

import (
	"context"
	"database/sql"
	"sync"
)

// MemoryDirectory is a fixed set of known users, for tests and local runs.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func NewMemory(userIDs ...string) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]struct{}, len(userIDs))}
	for _, id := range userIDs {
		d.users[id] = struct{}{}
	}
	return d
}

func (d *MemoryDirectory) Add(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = struct{}{}
}

func (d *MemoryDirectory) Exists(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, nil
}

// PostgresDirectory looks users up in the shared users table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresDirectory { return &PostgresDirectory{db: db} }

func (d *PostgresDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&ok)
	return ok, err
}
