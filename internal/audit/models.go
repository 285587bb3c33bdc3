package audit

import "time"

// Event is an immutable, append-only security record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; never block signaling on audit failures.
//
// Storage (Postgres): table audit_events, INSERT-only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorUserID is empty for refused admissions.
	ActorUserID  string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ConnectionID string `json:"connection_id,omitempty" db:"connection_id"`
	IPAddress    string `json:"ip_address,omitempty" db:"ip_address"`

	// Inbound is the client event name that was refused, if any.
	Inbound string `json:"inbound,omitempty" db:"inbound"`
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAuthFailure  EventType = "auth_failure"
	EventTypeUnauthorized EventType = "unauthorized_command"
)
