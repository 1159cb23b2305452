package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"campus-messaging/internal/models"
)

// ReactionRepository stores per-message reactions and read receipts.
type ReactionRepository interface {
	UpsertReaction(ctx context.Context, messageID, userID, emoji string) (models.Reaction, error)
	DeleteReaction(ctx context.Context, messageID, userID, emoji string) (int64, error)
	ListReactions(ctx context.Context, messageIDs []string) ([]models.Reaction, error)
	UpsertReadReceipt(ctx context.Context, messageID, userID string, at time.Time) error
	ListReadReceipts(ctx context.Context, messageIDs []string) ([]models.ReadReceipt, error)
}

// ReactionRepo is a sqlx-backed implementation.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// UpsertReaction records a reaction; repeating the same triple returns the existing row.
func (r *ReactionRepo) UpsertReaction(ctx context.Context, messageID, userID, emoji string) (models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.GetContext(ctx, &reaction, `INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id, emoji) DO UPDATE SET emoji = EXCLUDED.emoji
        RETURNING id, message_id, user_id, emoji, created_at`, messageID, userID, emoji)
	return reaction, err
}

// DeleteReaction removes the exact triple and reports how many rows went away.
func (r *ReactionRepo) DeleteReaction(ctx context.Context, messageID, userID, emoji string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`, messageID, userID, emoji)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListReactions returns reactions joined with the reactor profile.
func (r *ReactionRepo) ListReactions(ctx context.Context, messageIDs []string) ([]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var reactions []models.Reaction
	err := r.db.SelectContext(ctx, &reactions, `SELECT mr.id, mr.message_id, mr.user_id, mr.emoji, mr.created_at,
            p.id AS "user.id", p.username AS "user.username", p.display_name AS "user.display_name"
        FROM message_reactions mr
        INNER JOIN profiles p ON p.id = mr.user_id
        WHERE mr.message_id = ANY($1::uuid[])
        ORDER BY mr.created_at ASC`, pq.Array(messageIDs))
	return reactions, err
}

// UpsertReadReceipt records that the user read the message; the first read time is kept.
func (r *ReactionRepo) UpsertReadReceipt(ctx context.Context, messageID, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO read_receipts (message_id, user_id, read_at) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID, at)
	return err
}

// ListReadReceipts returns receipts joined with the reader profile.
func (r *ReactionRepo) ListReadReceipts(ctx context.Context, messageIDs []string) ([]models.ReadReceipt, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var receipts []models.ReadReceipt
	err := r.db.SelectContext(ctx, &receipts, `SELECT rr.id, rr.message_id, rr.user_id, rr.read_at,
            p.id AS "user.id", p.username AS "user.username", p.display_name AS "user.display_name"
        FROM read_receipts rr
        INNER JOIN profiles p ON p.id = rr.user_id
        WHERE rr.message_id = ANY($1::uuid[])
        ORDER BY rr.read_at ASC`, pq.Array(messageIDs))
	return receipts, err
}
