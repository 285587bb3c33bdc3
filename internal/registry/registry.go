// Package registry is the authoritative map of user identity to live
// connections. Every other component pushes to users through it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"callhub/internal/events"
	"callhub/internal/keymutex"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	// ErrAuth wraps any credential verification failure at admission.
	ErrAuth = errors.New("registry: authentication failed")

	ErrUnknownConnection = errors.New("registry: unknown connection")
)

// Verifier resolves an externally issued credential to a user id.
type Verifier interface {
	VerifyCredential(ctx context.Context, token string) (userID string, err error)
}

// Listener is notified of presence edges for a user. Listeners run with the
// user's registry lock held, so online/offline callbacks for one user never
// interleave; they must not call Admit or Remove.
type Listener func(ctx context.Context, userID string)

// Connection is one admitted transport session.
type Connection struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	sink events.Sink
}

// Send pushes an event to this connection only.
func (c *Connection) Send(ev events.Event) error {
	return c.sink.Send(ev)
}

type Registry struct {
	verifier Verifier
	log      *slog.Logger
	clock    func() time.Time
	newID    func() string

	locks *keymutex.KeyMutex
	// userID -> []*Connection; slices are never mutated after Store.
	byUser sync.Map
	byConn sync.Map

	listenMu  sync.RWMutex
	onOnline  []Listener
	onOffline []Listener
}

func New(v Verifier, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		verifier: v,
		log:      log,
		clock:    time.Now,
		newID:    uuid.NewString,
		locks:    keymutex.New(),
	}
}

// OnOnline registers a callback for a user's first connection.
func (r *Registry) OnOnline(l Listener) {
	r.listenMu.Lock()
	defer r.listenMu.Unlock()
	r.onOnline = append(r.onOnline, l)
}

// OnOffline registers a callback for a user's last connection going away.
func (r *Registry) OnOffline(l Listener) {
	r.listenMu.Lock()
	defer r.listenMu.Unlock()
	r.onOffline = append(r.onOffline, l)
}

// Verify checks a credential without registering anything.
func (r *Registry) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing credential", ErrAuth)
	}
	userID, err := r.verifier.VerifyCredential(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: empty identity", ErrAuth)
	}
	return userID, nil
}

// Admit verifies the credential and registers a new connection for the
// decoded identity.
func (r *Registry) Admit(ctx context.Context, token string, sink events.Sink) (*Connection, error) {
	userID, err := r.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return r.Register(ctx, userID, sink), nil
}

// Register adds a connection for an already verified user.
func (r *Registry) Register(ctx context.Context, userID string, sink events.Sink) *Connection {
	conn := &Connection{
		ID:        r.newID(),
		UserID:    userID,
		CreatedAt: r.clock().UTC(),
		sink:      sink,
	}

	unlock := r.locks.Lock(userID)
	defer unlock()

	cur := r.snapshot(userID)
	next := make([]*Connection, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, conn)
	r.byUser.Store(userID, next)
	r.byConn.Store(conn.ID, conn)

	r.log.Debug("connection admitted", "conn_id", conn.ID, "user_id", userID, "connections", len(next))
	if len(cur) == 0 {
		r.fire(ctx, r.onlineListeners(), userID)
	}
	return conn
}

// Remove deregisters a connection. It reports whether the user went offline
// as a result. Removing an unknown or already removed id is a no-op.
func (r *Registry) Remove(ctx context.Context, connID string) (wentOffline bool) {
	v, ok := r.byConn.Load(connID)
	if !ok {
		return false
	}
	userID := v.(*Connection).UserID

	unlock := r.locks.Lock(userID)
	defer unlock()

	if _, loaded := r.byConn.LoadAndDelete(connID); !loaded {
		return false
	}
	next := lo.Filter(r.snapshot(userID), func(c *Connection, _ int) bool {
		return c.ID != connID
	})
	if len(next) > 0 {
		r.byUser.Store(userID, next)
		r.log.Debug("connection removed", "conn_id", connID, "user_id", userID, "connections", len(next))
		return false
	}

	r.byUser.Delete(userID)
	r.log.Debug("connection removed, user offline", "conn_id", connID, "user_id", userID)
	r.fire(ctx, r.offlineListeners(), userID)
	return true
}

// Connection looks up a live connection by id.
func (r *Registry) Connection(connID string) (*Connection, error) {
	v, ok := r.byConn.Load(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	return v.(*Connection), nil
}

// ConnectionsFor returns a copy of the user's live connections.
func (r *Registry) ConnectionsFor(userID string) []*Connection {
	cur := r.snapshot(userID)
	out := make([]*Connection, len(cur))
	copy(out, cur)
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	return len(r.snapshot(userID)) > 0
}

// OnlineUsers lists every user with at least one connection, sorted.
func (r *Registry) OnlineUsers() []string {
	var out []string
	r.byUser.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// SendToUser fans an event out to every connection of userID and returns
// how many connections accepted it.
func (r *Registry) SendToUser(userID string, ev events.Event) int {
	delivered := 0
	for _, c := range r.snapshot(userID) {
		if err := c.Send(ev); err != nil {
			r.log.Debug("send failed", "conn_id", c.ID, "user_id", userID, "event", ev.Name, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast sends an event to every online user except the given one.
func (r *Registry) Broadcast(ev events.Event, exceptUserID string) {
	r.byUser.Range(func(k, _ any) bool {
		if uid := k.(string); uid != exceptUserID {
			r.SendToUser(uid, ev)
		}
		return true
	})
}

func (r *Registry) snapshot(userID string) []*Connection {
	v, ok := r.byUser.Load(userID)
	if !ok {
		return nil
	}
	return v.([]*Connection)
}

func (r *Registry) onlineListeners() []Listener {
	r.listenMu.RLock()
	defer r.listenMu.RUnlock()
	return append([]Listener(nil), r.onOnline...)
}

func (r *Registry) offlineListeners() []Listener {
	r.listenMu.RLock()
	defer r.listenMu.RUnlock()
	return append([]Listener(nil), r.onOffline...)
}

func (r *Registry) fire(ctx context.Context, ls []Listener, userID string) {
	for _, l := range ls {
		l(ctx, userID)
	}
}
