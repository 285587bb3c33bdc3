package history

import (
	"context"
	"errors"
	"math"
	"time"

	"callhub/internal/calls"

	"github.com/samber/lo"
)

var (
	ErrInvalidRequest = errors.New("history: invalid request")
	ErrNotFound       = errors.New("history: call not found")
	ErrForbidden      = errors.New("history: not a participant")
	ErrNotFinished    = errors.New("history: call not finished")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultDays     = 30
	maxDays         = 365
)

// Repository is the persistence contract for archived calls.
//
// IMPORTANT:
// - Every listing must be filtered to sessions the user took part in.
// - Upsert also appends one Event per call so status history is kept.
type Repository interface {
	Upsert(ctx context.Context, s calls.Session) error
	Get(ctx context.Context, callID string) (calls.Session, error)
	ListForUser(ctx context.Context, userID string, callType calls.CallType, offset, limit int) ([]calls.Session, int, error)
	ListSince(ctx context.Context, userID string, since time.Time) ([]calls.Session, error)
	SetQuality(ctx context.Context, callID string, q calls.Quality) error
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Record implements calls.Archive.
func (s *Service) Record(ctx context.Context, session calls.Session) error {
	if s.repo == nil {
		return errors.New("history: repository not configured")
	}
	if session.CallID == "" || session.Status == "" {
		return ErrInvalidRequest
	}
	return s.repo.Upsert(ctx, session)
}

// History returns one page of the user's calls, newest first.
func (s *Service) History(ctx context.Context, userID string, page, limit int, callType string) (Page, error) {
	if userID == "" {
		return Page{}, ErrInvalidRequest
	}
	var ct calls.CallType
	if callType != "" {
		parsed, err := calls.ParseCallType(callType)
		if err != nil {
			return Page{}, ErrInvalidRequest
		}
		ct = parsed
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	if page > math.MaxInt/limit {
		return Page{}, ErrInvalidRequest
	}

	rows, total, err := s.repo.ListForUser(ctx, userID, ct, (page-1)*limit, limit)
	if err != nil {
		return Page{}, err
	}
	if rows == nil {
		rows = []calls.Session{}
	}
	return Page{
		Calls: rows,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// Stats summarizes the user's calls created in the last days days.
func (s *Service) Stats(ctx context.Context, userID string, days int) (Stats, error) {
	if userID == "" {
		return Stats{}, ErrInvalidRequest
	}
	if days <= 0 {
		days = defaultDays
	}
	if days > maxDays {
		return Stats{}, ErrInvalidRequest
	}

	since := s.clock().UTC().AddDate(0, 0, -days)
	rows, err := s.repo.ListSince(ctx, userID, since)
	if err != nil {
		return Stats{}, err
	}

	completed := lo.Filter(rows, func(c calls.Session, _ int) bool { return c.Status == calls.StatusEnded })
	out := Stats{
		TotalCalls:     len(rows),
		VideoCalls:     lo.CountBy(rows, func(c calls.Session) bool { return c.CallType == calls.CallTypeVideo }),
		VoiceCalls:     lo.CountBy(rows, func(c calls.Session) bool { return c.CallType == calls.CallTypeVoice }),
		CompletedCalls: len(completed),
		MissedCalls:    lo.CountBy(rows, func(c calls.Session) bool { return c.Status == calls.StatusMissed }),
	}
	if len(completed) > 0 {
		total := lo.SumBy(completed, func(c calls.Session) int64 { return c.DurationSeconds })
		out.AverageDurationSeconds = total / int64(len(completed))
	}
	return out, nil
}

// Get returns an archived call if userID took part in it.
func (s *Service) Get(ctx context.Context, callID, userID string) (calls.Session, error) {
	c, err := s.repo.Get(ctx, callID)
	if err != nil {
		return calls.Session{}, err
	}
	if !c.IsParticipant(userID) {
		return calls.Session{}, ErrForbidden
	}
	return c, nil
}

// RateQuality stores a participant's quality rating for a finished call.
func (s *Service) RateQuality(ctx context.Context, callID, userID, raw string) (calls.Session, error) {
	q, err := calls.ParseQuality(raw)
	if err != nil {
		return calls.Session{}, err
	}
	c, err := s.Get(ctx, callID, userID)
	if err != nil {
		return calls.Session{}, err
	}
	if !c.Status.Terminal() {
		return calls.Session{}, ErrNotFinished
	}
	if err := s.repo.SetQuality(ctx, callID, q); err != nil {
		return calls.Session{}, err
	}
	c.Quality = q
	return c, nil
}
