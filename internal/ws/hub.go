package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/observability"
	"campus-messaging/internal/realtime"
)

const wsRoutingKey = "ws_events.sessions"

// Publisher publishes websocket lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Hub tracks live sessions and forwards invalidations to the ones whose view
// depends on the invalidated key.
type Hub struct {
	sessions  map[*Session]bool
	mu        sync.RWMutex
	publisher Publisher
	log       *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(publisher Publisher, log *logger.Logger) *Hub {
	return &Hub{
		sessions:  make(map[*Session]bool),
		publisher: publisher,
		log:       log,
	}
}

func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
}

func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Notify is a bus subscriber. It never blocks.
func (h *Hub) Notify(inv realtime.Invalidation) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if s.Subscribed(inv.Key) {
			s.Invalidated(inv.Key)
		}
	}
}

func (h *Hub) publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(event)
	if h.publisher == nil {
		return
	}

	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	err := h.publisher.Publish(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		RequestID: info.RequestID,
		TraceID:   info.TraceID,
		Payload:   payload,
	})
	if err != nil {
		h.log.Warn("ws event publish failed", zap.String("event", event), zap.Error(err))
	}
}

// CloseAll closes every session's connection. Sessions then unwind on their
// own and mark their users offline.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		_ = s.conn.Close()
	}
}
