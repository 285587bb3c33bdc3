package messages

import (
	"context"
	"database/sql"
	"errors"

	"callhub/pkg/utils"
)

// PostgresRepo stores messages in the messages and message_reactions tables.
//
//	CREATE TABLE messages (
//	  id          uuid PRIMARY KEY,
//	  sender_id   text NOT NULL,
//	  receiver_id text NOT NULL,
//	  content     text NOT NULL,
//	  kind        text NOT NULL,
//	  status      text NOT NULL,
//	  created_at  timestamptz NOT NULL
//	);
//	CREATE TABLE message_reactions (
//	  message_id uuid NOT NULL REFERENCES messages(id),
//	  user_id    text NOT NULL,
//	  emoji      text NOT NULL,
//	  created_at timestamptz NOT NULL,
//	  PRIMARY KEY (message_id, user_id)
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Save(ctx context.Context, m Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, kind, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, string(m.Kind), string(m.Status), m.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Message, error) {
	var m Message
	err := r.db.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, content, kind, status, created_at
		FROM messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Kind, &m.Status, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, emoji, created_at FROM message_reactions
		WHERE message_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return Message{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var rx Reaction
		if err := rows.Scan(&rx.UserID, &rx.Emoji, &rx.CreatedAt); err != nil {
			return Message{}, err
		}
		m.Reactions = append(m.Reactions, rx)
	}
	return m, rows.Err()
}

func (r *PostgresRepo) AdvanceStatus(ctx context.Context, id string, to Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = $2
		WHERE id = $1 AND (CASE status WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE 0 END) < $3`,
		id, string(to), to.rank(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either already at or past the target, or missing.
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *PostgresRepo) UpsertReaction(ctx context.Context, id string, rx Reaction) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = EXCLUDED.emoji, created_at = EXCLUDED.created_at`,
			id, rx.UserID, rx.Emoji, rx.CreatedAt,
		)
		return err
	})
}
