package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/infra/metrics"
)

const (
	StepLoadEvent    = "load_event"
	StepResolve      = "resolve_identity"
	StepUpsertLead   = "upsert_lead"
	StepRouteUsers   = "route_users"
	StepRouteSpace   = "route_workspace"
	StepNotify       = "notify"
	StepPublish      = "publish_identity_updated"
	StepMarkDone     = "mark_processed"
	codeStorageError = "STORAGE_ERROR"
)

// steps runs the pipeline's two kinds of work. must is for writes whose failure
// sends the event back for retry; try is for side effects that are logged and
// skipped so a retry never repeats them.
type steps struct {
	logger *zap.Logger
}

func (s steps) must(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if err == nil {
		s.logger.Debug("step done", zap.String("step", name), zap.Duration("took", time.Since(start)))
		return nil
	}
	if IsDomainError(err) || IsTechnicalError(err) {
		return err
	}
	metrics.RecordStepFailure(name)
	return &TechnicalError{Code: codeStorageError, Step: name, Err: err}
}

func (s steps) try(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		metrics.RecordSideEffectFailure(name)
		s.logger.Warn("best-effort step failed", zap.String("step", name), zap.Error(err))
	}
}
