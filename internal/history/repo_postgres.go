package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callhub/internal/calls"
	"callhub/pkg/utils"
)

// PostgresRepo stores the archive in call_history and the status trail in
// the insert-only call_events table.
//
//	CREATE TABLE call_history (
//	  call_id          text PRIMARY KEY,
//	  caller_id        text NOT NULL,
//	  receiver_id      text NOT NULL,
//	  call_type        text NOT NULL,
//	  status           text NOT NULL,
//	  created_at       timestamptz NOT NULL,
//	  accepted_at      timestamptz,
//	  ended_at         timestamptz,
//	  missed_reason    text NOT NULL DEFAULT '',
//	  ended_by         text NOT NULL DEFAULT '',
//	  duration         text NOT NULL DEFAULT '',
//	  duration_seconds bigint NOT NULL DEFAULT 0,
//	  quality          text NOT NULL DEFAULT ''
//	);
//	CREATE INDEX call_history_caller ON call_history (caller_id, created_at DESC);
//	CREATE INDEX call_history_receiver ON call_history (receiver_id, created_at DESC);
//	CREATE TABLE call_events (
//	  id      bigserial PRIMARY KEY,
//	  call_id text NOT NULL,
//	  status  text NOT NULL,
//	  at      timestamptz NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const selectColumns = `call_id, caller_id, receiver_id, call_type, status, created_at, accepted_at,
	ended_at, missed_reason, ended_by, duration, duration_seconds, quality`

func (r *PostgresRepo) Upsert(ctx context.Context, s calls.Session) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO call_history (call_id, caller_id, receiver_id, call_type, status, created_at,
				accepted_at, ended_at, missed_reason, ended_by, duration, duration_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (call_id) DO UPDATE SET
				status = EXCLUDED.status,
				accepted_at = EXCLUDED.accepted_at,
				ended_at = EXCLUDED.ended_at,
				missed_reason = EXCLUDED.missed_reason,
				ended_by = EXCLUDED.ended_by,
				duration = EXCLUDED.duration,
				duration_seconds = EXCLUDED.duration_seconds`,
			s.CallID, s.CallerID, s.ReceiverID, string(s.CallType), string(s.Status), s.CreatedAt,
			s.AcceptedAt, s.EndedAt, string(s.MissedReason), s.EndedBy, s.Duration, s.DurationSeconds,
		)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO call_events (call_id, status, at) VALUES ($1, $2, $3)`,
			s.CallID, string(s.Status), eventTime(s))
		return err
	})
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (calls.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM call_history WHERE call_id = $1`, callID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calls.Session{}, ErrNotFound
	}
	return s, err
}

func (r *PostgresRepo) ListForUser(ctx context.Context, userID string, callType calls.CallType, offset, limit int) ([]calls.Session, int, error) {
	const where = `(caller_id = $1 OR receiver_id = $1) AND ($2 = '' OR call_type = $2)`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_history WHERE `+where, userID, string(callType)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM call_history WHERE `+where+`
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, userID, string(callType), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := scanSessions(rows)
	return out, total, err
}

func (r *PostgresRepo) ListSince(ctx context.Context, userID string, since time.Time) ([]calls.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM call_history
		WHERE (caller_id = $1 OR receiver_id = $1) AND created_at >= $2`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *PostgresRepo) SetQuality(ctx context.Context, callID string, q calls.Quality) error {
	res, err := r.db.ExecContext(ctx, `UPDATE call_history SET quality = $2 WHERE call_id = $1`, callID, string(q))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (calls.Session, error) {
	var (
		s               calls.Session
		accepted, ended sql.NullTime
	)
	err := row.Scan(&s.CallID, &s.CallerID, &s.ReceiverID, &s.CallType, &s.Status, &s.CreatedAt,
		&accepted, &ended, &s.MissedReason, &s.EndedBy, &s.Duration, &s.DurationSeconds, &s.Quality)
	if err != nil {
		return calls.Session{}, err
	}
	if accepted.Valid {
		s.AcceptedAt = &accepted.Time
	}
	if ended.Valid {
		s.EndedAt = &ended.Time
	}
	return s, nil
}

func scanSessions(rows *sql.Rows) ([]calls.Session, error) {
	var out []calls.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
