package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"campus-messaging/internal/cache"
	"campus-messaging/internal/logger"
)

// Scheduler periodically invalidates presence and typing queries, standing in
// for observers polling on an interval.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
}

func NewScheduler(bus *Bus, presenceEvery, typingEvery time.Duration, log *logger.Logger) (*Scheduler, error) {
	c := cron.New()
	jobs := []struct {
		every time.Duration
		key   cache.Key
	}{
		{presenceEvery, PresenceRoot},
		{typingEvery, TypingRoot},
	}
	for _, job := range jobs {
		key := job.key
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", job.every), func() {
			bus.Publish(Invalidation{Key: key, Source: "poll"})
		}); err != nil {
			return nil, fmt.Errorf("schedule %s refresh: %w", key, err)
		}
		log.Info("refresh scheduled", zap.String("key", string(key)), zap.Duration("every", job.every))
	}
	return &Scheduler{cron: c, log: log}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
