package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

const sweepBatchSize = 500

// StaleEventClaimer hands out open events not queued since olderThan and
// stamps them as queued at now, so they are not handed out again until a
// full stale window has passed.
type StaleEventClaimer interface {
	ClaimStale(ctx context.Context, olderThan, now time.Time, limit int) ([]*entity.RawEvent, error)
}

type AudiencePublisher interface {
	PublishAudienceEvent(ctx context.Context, msg entity.AudienceEventReceived) error
}

// StaleEventSweeper republishes open events whose queue message was lost,
// e.g. when the broker was unreachable at ingest time. An event is re-queued
// at most once per stale window, measured from its last enqueue.
type StaleEventSweeper struct {
	events       StaleEventClaimer
	publisher    AudiencePublisher
	staleAfter   time.Duration
	tickInterval time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewStaleEventSweeper(events StaleEventClaimer, publisher AudiencePublisher, staleAfter, tickInterval time.Duration, logger *zap.Logger) *StaleEventSweeper {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	return &StaleEventSweeper{
		events:       events,
		publisher:    publisher,
		staleAfter:   staleAfter,
		tickInterval: tickInterval,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *StaleEventSweeper) Start(ctx context.Context) {
	s.logger.Info("stale event sweeper started",
		zap.Duration("stale_after", s.staleAfter),
		zap.Duration("interval", s.tickInterval),
	)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stale event sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep returns the number of events republished.
func (s *StaleEventSweeper) sweep(ctx context.Context) int {
	now := s.now()
	events, err := s.events.ClaimStale(ctx, now.Add(-s.staleAfter), now, sweepBatchSize)
	if err != nil {
		s.logger.Error("failed to claim stale events", zap.Error(err))
		return 0
	}

	republished := 0
	for _, e := range events {
		err := s.publisher.PublishAudienceEvent(ctx, entity.AudienceEventReceived{
			EventID:     e.ID,
			WorkspaceID: e.WorkspaceID,
			Source:      e.Source,
		})
		if err != nil {
			s.logger.Warn("failed to republish stale event, retrying next window", zap.String("event_id", e.ID), zap.Error(err))
			continue
		}
		republished++
	}

	if republished > 0 {
		s.logger.Info("stale events republished", zap.Int("count", republished))
	}
	return republished
}
