package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"campus-messaging/internal/models"
)

// TypingRepository stores per-conversation typing flags.
type TypingRepository interface {
	Upsert(ctx context.Context, conversationID, userID string, typing bool, at time.Time) error
	ListTyping(ctx context.Context, conversationID string) ([]models.TypingIndicator, error)
}

type TypingRepo struct {
	db *sqlx.DB
}

func NewTypingRepo(db *sqlx.DB) *TypingRepo {
	return &TypingRepo{db: db}
}

func (r *TypingRepo) Upsert(ctx context.Context, conversationID, userID string, typing bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO typing_indicators (conversation_id, user_id, is_typing, updated_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET is_typing = EXCLUDED.is_typing, updated_at = EXCLUDED.updated_at`,
		conversationID, userID, typing, at)
	return err
}

// ListTyping returns the users currently flagged as typing, joined with their profile.
func (r *TypingRepo) ListTyping(ctx context.Context, conversationID string) ([]models.TypingIndicator, error) {
	var rows []models.TypingIndicator
	err := r.db.SelectContext(ctx, &rows, `SELECT ti.conversation_id, ti.user_id, ti.is_typing, ti.updated_at,
            p.id AS "user.id", p.username AS "user.username", p.display_name AS "user.display_name"
        FROM typing_indicators ti
        INNER JOIN profiles p ON p.id = ti.user_id
        WHERE ti.conversation_id = $1 AND ti.is_typing = TRUE
        ORDER BY ti.updated_at ASC`, conversationID)
	return rows, err
}
