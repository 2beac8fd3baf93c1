package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/infra/metrics"
)

type IngestEventUseCase struct {
	Events    entity.RawEventRepositoryInterface
	Publisher AudienceEventPublisher
	Logger    *zap.Logger
}

func NewIngestEventUseCase(events entity.RawEventRepositoryInterface, publisher AudienceEventPublisher, logger *zap.Logger) *IngestEventUseCase {
	return &IngestEventUseCase{
		Events:    events,
		Publisher: publisher,
		Logger:    logger,
	}
}

// Execute stores the payload and queues it. The stored row is the source of
// truth: a failed publish still returns the event id and the stale sweeper
// picks the event up later.
func (uc *IngestEventUseCase) Execute(ctx context.Context, input IngestEventInput) (*IngestEventOutput, error) {
	if errs := ValidateIngestEventInput(input); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, &DomainError{Code: "INVALID_EVENT", Message: strings.Join(msgs, "; ")}
	}

	event := entity.NewRawEvent(input.WorkspaceID, strings.TrimSpace(input.Source), input.PartnerID, input.Payload)
	if err := uc.Events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("store raw event: %w", err)
	}
	metrics.RecordIngested(event.Source)

	out := &IngestEventOutput{EventID: event.ID, Queued: true}
	err := uc.Publisher.PublishAudienceEvent(ctx, entity.AudienceEventReceived{
		EventID:     event.ID,
		WorkspaceID: event.WorkspaceID,
		Source:      event.Source,
	})
	if err != nil {
		uc.Logger.Warn("publish audience event failed, left for sweeper",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		out.Queued = false
	}
	return out, nil
}

type EventStatusUseCase struct {
	Events    entity.RawEventRepositoryInterface
	Publisher AudienceEventPublisher
}

func NewEventStatusUseCase(events entity.RawEventRepositoryInterface, publisher AudienceEventPublisher) *EventStatusUseCase {
	return &EventStatusUseCase{Events: events, Publisher: publisher}
}

func (uc *EventStatusUseCase) Get(ctx context.Context, eventID string) (*entity.RawEvent, error) {
	event, err := uc.Events.FindByID(ctx, eventID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, &DomainError{Code: "EVENT_NOT_FOUND", Message: "raw event " + eventID + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("find raw event: %w", err)
	}
	return event, nil
}

// Replay re-queues an open event. Closed events are returned untouched. The
// enqueue time is stamped first so the stale sweeper does not queue it again.
func (uc *EventStatusUseCase) Replay(ctx context.Context, eventID string) (*IngestEventOutput, error) {
	event, err := uc.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Processed {
		return &IngestEventOutput{EventID: event.ID, Queued: false}, nil
	}
	if err := uc.Events.MarkEnqueued(ctx, event.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("mark event %s enqueued: %w", event.ID, err)
	}
	err = uc.Publisher.PublishAudienceEvent(ctx, entity.AudienceEventReceived{
		EventID:     event.ID,
		WorkspaceID: event.WorkspaceID,
		Source:      event.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("republish event %s: %w", event.ID, err)
	}
	return &IngestEventOutput{EventID: event.ID, Queued: true}, nil
}
