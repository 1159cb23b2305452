package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campus-messaging/internal/auth"
	"campus-messaging/internal/cache"
	"campus-messaging/internal/logger"
	"campus-messaging/internal/models"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/telemetry"
)

// Publisher publishes domain events. The RabbitMQ publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Deps are the collaborators shared by every messaging service.
type Deps struct {
	Cache  *cache.Query
	Bus    *realtime.Bus
	Events Publisher
	Audit  *telemetry.AuditEmitter
	Log    *logger.Logger
	Now    func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.New()
	}
	if d.Bus == nil {
		d.Bus = realtime.NewBus()
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) publish(ctx context.Context, ev models.DomainEvent) {
	if d.Events == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.Now().UTC()
	}
	if err := d.Events.Publish(ctx, ev.Type, ev); err != nil {
		d.Log.Warn("domain event publish failed", zap.String("event", ev.Type), zap.Error(err))
	}
}

func currentUser(ctx context.Context) (string, error) {
	userID, ok := auth.UserID(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
