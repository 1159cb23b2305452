package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository updates the media URLs on a profile.
type ProfileRepository interface {
	UpdateAvatar(ctx context.Context, userID, url string) error
	UpdateCover(ctx context.Context, userID, url string) error
}

type ProfileRepo struct {
	db *sqlx.DB
}

func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) UpdateAvatar(ctx context.Context, userID, url string) error {
	return r.update(ctx, `UPDATE profiles SET avatar_url = $2, updated_at = NOW() WHERE id = $1`, userID, url)
}

func (r *ProfileRepo) UpdateCover(ctx context.Context, userID, url string) error {
	return r.update(ctx, `UPDATE profiles SET cover_url = $2, updated_at = NOW() WHERE id = $1`, userID, url)
}

func (r *ProfileRepo) update(ctx context.Context, query, userID, url string) error {
	res, err := r.db.ExecContext(ctx, query, userID, url)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrProfileNotFound
	}
	return nil
}
