package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"campus-messaging/internal/models"
)

// PresenceRepository stores the per-user online flag.
type PresenceRepository interface {
	Upsert(ctx context.Context, userID string, online bool, at time.Time) error
	List(ctx context.Context, userIDs []string) ([]models.Presence, error)
}

type PresenceRepo struct {
	db *sqlx.DB
}

func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

func (r *PresenceRepo) Upsert(ctx context.Context, userID string, online bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO user_presence (user_id, is_online, last_seen, updated_at) VALUES ($1, $2, $3, $3)
        ON CONFLICT (user_id) DO UPDATE SET is_online = EXCLUDED.is_online, last_seen = EXCLUDED.last_seen, updated_at = EXCLUDED.updated_at`,
		userID, online, at)
	return err
}

func (r *PresenceRepo) List(ctx context.Context, userIDs []string) ([]models.Presence, error) {
	var rows []models.Presence
	err := r.db.SelectContext(ctx, &rows, `SELECT user_id, is_online, last_seen, updated_at FROM user_presence
        WHERE user_id = ANY($1::uuid[])`, pq.Array(userIDs))
	return rows, err
}
