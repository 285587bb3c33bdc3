package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records refused admissions and commands a user was not allowed
// to issue.
//
// IMPORTANT:
// - Audit is internal-only. Records are never sent to clients.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Type == EventTypeUnauthorized && e.ActorUserID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogAuthFailure records a websocket admission refused for a bad credential.
func (s *Service) LogAuthFailure(ctx context.Context, ip, message string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeAuthFailure,
		IPAddress: ip,
		Message:   message,
	})
}

// LogUnauthorized records a command rejected because the actor was not
// entitled to it, e.g. accepting someone else's call.
func (s *Service) LogUnauthorized(ctx context.Context, actorUserID, connID, inbound, message string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeUnauthorized,
		ActorUserID:  actorUserID,
		ConnectionID: connID,
		Inbound:      inbound,
		Message:      message,
	})
}
