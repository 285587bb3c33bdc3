package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events.
//
//	CREATE TABLE audit_events (
//	  id            uuid PRIMARY KEY,
//	  type          text NOT NULL,
//	  actor_user_id text,
//	  connection_id text,
//	  ip_address    text,
//	  inbound       text,
//	  message       text,
//	  created_at    timestamptz NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, type, actor_user_id, connection_id, ip_address, inbound, message, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)`,
		e.ID, string(e.Type), e.ActorUserID, e.ConnectionID, e.IPAddress, e.Inbound, e.Message, e.CreatedAt,
	)
	return err
}
