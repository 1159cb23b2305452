package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campus-messaging/internal/cache"
	"campus-messaging/internal/models"
	"campus-messaging/internal/observability"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/repositories"
)

// PresenceTracker keeps the presence row of connected users fresh and serves
// presence snapshots to observers.
type PresenceTracker struct {
	repo     repositories.PresenceRepository
	deps     Deps
	interval time.Duration
}

func NewPresenceTracker(repo repositories.PresenceRepository, deps Deps, interval time.Duration) *PresenceTracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PresenceTracker{repo: repo, deps: deps.withDefaults(), interval: interval}
}

// Track marks userID online, refreshes the row every interval while ctx is
// live and marks the user offline once ctx ends. It blocks.
func (t *PresenceTracker) Track(ctx context.Context, userID string) {
	t.write(ctx, userID, true)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			t.write(offCtx, userID, false)
			cancel()
			return
		case <-ticker.C:
			t.write(ctx, userID, true)
		}
	}
}

// SetVisible follows page visibility: hidden is offline, visible is online.
func (t *PresenceTracker) SetVisible(ctx context.Context, userID string, visible bool) {
	t.write(ctx, userID, visible)
}

// Snapshot returns the presence rows of userIDs.
func (t *PresenceTracker) Snapshot(ctx context.Context, userIDs []string) ([]models.Presence, error) {
	if len(userIDs) == 0 {
		return []models.Presence{}, nil
	}
	return cache.Fetch(ctx, t.deps.Cache, realtime.PresenceKey(userIDs), func(ctx context.Context) ([]models.Presence, error) {
		rows, err := t.repo.List(ctx, userIDs)
		if err != nil {
			return nil, remoteError("presence snapshot", err)
		}
		if rows == nil {
			rows = []models.Presence{}
		}
		return rows, nil
	})
}

func (t *PresenceTracker) write(ctx context.Context, userID string, online bool) {
	if err := t.repo.Upsert(ctx, userID, online, t.deps.Now().UTC()); err != nil {
		observability.IncBackgroundWriteFailure("presence")
		t.deps.Log.Warn("presence update failed",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
		return
	}
	t.deps.Bus.Invalidate(realtime.PresenceRoot)
}
