package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"campus-messaging/internal/logger"
)

// ConnectNATS dials the NATS server used for cross-instance invalidations.
func ConnectNATS(url, name string, log *logger.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("nats error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// NATSBridge shares mutation-driven invalidations between service instances.
// Feed and poll invalidations stay local: every instance has its own.
type NATSBridge struct {
	nc      natsConn
	bus     *Bus
	subject string
	origin  string
	log     *logger.Logger
}

func NewNATSBridge(nc natsConn, bus *Bus, subject string, log *logger.Logger) *NATSBridge {
	return &NATSBridge{
		nc:      nc,
		bus:     bus,
		subject: subject,
		origin:  uuid.NewString(),
		log:     log,
	}
}

// Start subscribes in both directions. The returned function undoes it.
func (b *NATSBridge) Start() (stop func(), err error) {
	sub, err := b.nc.Subscribe(b.subject, b.receive)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	unsubscribe := b.bus.Subscribe(b.forward)

	return func() {
		unsubscribe()
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	}, nil
}

func (b *NATSBridge) forward(inv Invalidation) {
	if inv.Origin != "" || inv.Source == "feed" || inv.Source == "poll" {
		return
	}
	inv.Origin = b.origin
	data, err := json.Marshal(inv)
	if err != nil {
		return
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		b.log.Warn("nats publish failed", zap.String("key", string(inv.Key)), zap.Error(err))
	}
}

func (b *NATSBridge) receive(msg *nats.Msg) {
	var inv Invalidation
	if err := json.Unmarshal(msg.Data, &inv); err != nil {
		b.log.Warn("nats invalidation rejected", zap.Error(err))
		return
	}
	if inv.Origin == "" || inv.Origin == b.origin {
		return
	}
	inv.Source = "nats"
	b.bus.Publish(inv)
}
