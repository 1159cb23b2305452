package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"campus-messaging/internal/db"
	"campus-messaging/internal/logger"
	"campus-messaging/internal/observability"
)

// Feed listens for row-change notifications and republishes them as
// invalidations.
type Feed struct {
	dsn          string
	bus          *Bus
	log          *logger.Logger
	minReconnect time.Duration
	maxReconnect time.Duration
	pingEvery    time.Duration
}

func NewFeed(dsn string, bus *Bus, log *logger.Logger) *Feed {
	return &Feed{
		dsn:          dsn,
		bus:          bus,
		log:          log,
		minReconnect: time.Second,
		maxReconnect: time.Minute,
		pingEvery:    90 * time.Second,
	}
}

// Run blocks until ctx is done. After a reconnect every key is invalidated
// since notifications sent while disconnected are lost.
func (f *Feed) Run(ctx context.Context) error {
	listener := pq.NewListener(f.dsn, f.minReconnect, f.maxReconnect, f.onListenerEvent)
	defer listener.Close()

	if err := listener.Listen(db.ChangeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", db.ChangeChannel, err)
	}
	f.log.Info("change feed listening", zap.String("channel", db.ChangeChannel))

	ticker := time.NewTicker(f.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-listener.Notify:
			if !ok {
				return errors.New("change feed closed")
			}
			if n == nil {
				f.bus.Publish(Invalidation{Key: AllKeys, Source: "feed"})
				continue
			}
			f.Handle(n.Extra)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					f.log.Warn("change feed ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// Handle decodes one notification payload and publishes its invalidations.
func (f *Feed) Handle(payload string) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		f.log.Warn("change feed payload rejected", zap.String("payload", payload), zap.Error(err))
		return
	}
	observability.IncChangeEvent(ev.Table, ev.Op)

	for _, key := range InvalidationsFor(ev) {
		f.bus.Publish(Invalidation{Key: key, Source: "feed"})
	}
}

func (f *Feed) onListenerEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		f.log.Info("change feed connected")
	case pq.ListenerEventDisconnected:
		f.log.Warn("change feed disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		f.log.Info("change feed reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		f.log.Warn("change feed connection attempt failed", zap.Error(err))
	}
}
