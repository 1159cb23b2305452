package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/models"
	"campus-messaging/internal/telemetry"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "campus.messaging", logger.Nop())

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	assert.NoError(t, p.Close())
}

func TestNoopPublishAcceptsKnownEvents(t *testing.T) {
	p := Noop(logger.Nop())

	assert.NoError(t, p.Publish(context.Background(), models.EventMessageSent, models.DomainEvent{Type: models.EventMessageSent, OccurredAt: time.Now()}))
	assert.NoError(t, p.Publish(context.Background(), "audit.messaging", telemetry.AuditEnvelope{EventType: "audit_log"}))
	assert.NoError(t, p.Publish(context.Background(), "other", map[string]string{"k": "v"}))
}
