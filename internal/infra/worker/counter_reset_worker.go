package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type CounterResetter interface {
	ResetExpiredWindows(ctx context.Context, now time.Time) (int64, error)
}

// CounterResetWorker zeroes daily, weekly and monthly lead counters once their window rolls over.
type CounterResetWorker struct {
	targeting    CounterResetter
	tickInterval time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewCounterResetWorker(targeting CounterResetter, tickInterval time.Duration, logger *zap.Logger) *CounterResetWorker {
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	return &CounterResetWorker{
		targeting:    targeting,
		tickInterval: tickInterval,
		logger:       logger,
		now:          time.Now,
	}
}

func (w *CounterResetWorker) Start(ctx context.Context) {
	w.logger.Info("counter reset worker started", zap.Duration("interval", w.tickInterval))

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	w.resetExpired(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("counter reset worker stopped")
			return
		case <-ticker.C:
			w.resetExpired(ctx)
		}
	}
}

func (w *CounterResetWorker) resetExpired(ctx context.Context) {
	n, err := w.targeting.ResetExpiredWindows(ctx, w.now())
	if err != nil {
		w.logger.Error("failed to reset lead counters", zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Info("lead counters reset", zap.Int64("windows", n))
	}
}
