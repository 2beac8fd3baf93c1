package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/infra/mail"
	"github.com/xavierca1/lead-pipeline/internal/infra/metrics"
)

// ProcessEventUseCase runs one RawEvent through the pipeline. It is the unit
// the queue consumer retries, so every write it performs must be safe to repeat.
type ProcessEventUseCase struct {
	Events    entity.RawEventRepositoryInterface
	Resolver  *IdentityResolver
	Upserter  *LeadUpserter
	Router    *LeadRouter
	Notifier  NotificationDispatcher
	Publisher IdentityEventPublisher
	Logger    *zap.Logger
}

func NewProcessEventUseCase(
	events entity.RawEventRepositoryInterface,
	resolver *IdentityResolver,
	upserter *LeadUpserter,
	router *LeadRouter,
	notifier NotificationDispatcher,
	publisher IdentityEventPublisher,
	logger *zap.Logger,
) *ProcessEventUseCase {
	return &ProcessEventUseCase{
		Events:    events,
		Resolver:  resolver,
		Upserter:  upserter,
		Router:    router,
		Notifier:  notifier,
		Publisher: publisher,
		Logger:    logger,
	}
}

func (uc *ProcessEventUseCase) Execute(ctx context.Context, input entity.AudienceEventReceived) (*ProcessEventOutput, error) {
	start := time.Now()
	log := uc.Logger.With(zap.String("event_id", input.EventID), zap.String("workspace_id", input.WorkspaceID))
	run := steps{logger: log}
	out := &ProcessEventOutput{EventID: input.EventID}

	var event *entity.RawEvent
	err := run.must(ctx, StepLoadEvent, func(ctx context.Context) error {
		var err error
		event, err = uc.Events.FindByID(ctx, input.EventID)
		if errors.Is(err, entity.ErrNotFound) {
			return &DomainError{Code: "EVENT_NOT_FOUND", Message: "raw event " + input.EventID + " not found"}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	// The processed flag is the only idempotency fence: a closed event does nothing.
	if event.Processed {
		out.Skipped = true
		out.Reason = entity.ReasonAlreadyProcessed
		out.IdentityID = event.IdentityID
		out.LeadID = event.LeadID
		log.Info("event already processed")
		return out, nil
	}
	if input.WorkspaceID != "" && input.WorkspaceID != event.WorkspaceID {
		return nil, &DomainError{Code: "WORKSPACE_MISMATCH", Message: "event " + event.ID + " does not belong to workspace " + input.WorkspaceID}
	}

	fragment := Normalize(event.Payload)
	if !fragment.HasKey() {
		out.Reason = entity.ReasonNoIdentifiableInfo
		return uc.finish(ctx, run, event, out, start)
	}

	var resolved *ResolveResult
	err = run.must(ctx, StepResolve, func(ctx context.Context) error {
		var err error
		resolved, err = uc.Resolver.Resolve(ctx, event.WorkspaceID, fragment)
		return err
	})
	if err != nil {
		return nil, err
	}
	identity := resolved.Identity
	out.IdentityID = identity.ID
	log = log.With(zap.String("identity_id", identity.ID), zap.String("matched_by", string(resolved.MatchedBy)))
	run.logger = log

	var upserted *UpsertLeadOutput
	err = run.must(ctx, StepUpsertLead, func(ctx context.Context) error {
		var err error
		upserted, err = uc.Upserter.Upsert(ctx, UpsertLeadInput{
			Identity:  identity,
			EventType: fragment.EventType,
			Worthy:    IsLeadWorthy(worthinessFor(fragment.EventType, identity)),
			Scope:     event.OwnershipScope(),
			PartnerID: event.PartnerID,
			Source:    event.Source,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	out.Reason = upserted.Reason
	out.LeadID = upserted.LeadID
	out.IsNewLead = upserted.IsNewLead

	if upserted.IsNewLead {
		lead := upserted.Lead
		run.try(ctx, StepRouteUsers, func(ctx context.Context) error {
			assigned, err := uc.Router.RouteToUsers(ctx, lead)
			out.AssignedUsers = assigned
			return err
		})
		run.try(ctx, StepRouteSpace, func(ctx context.Context) error {
			return uc.Router.RouteToWorkspace(ctx, lead)
		})
		if uc.Notifier != nil {
			run.try(ctx, StepNotify, func(ctx context.Context) error {
				return uc.Notifier.NotifyNewLead(ctx, leadSummary(lead))
			})
		}
	}

	if uc.Publisher != nil {
		run.try(ctx, StepPublish, func(ctx context.Context) error {
			return uc.Publisher.PublishIdentityUpdated(ctx, entity.IdentityUpdated{
				IdentityID:  identity.ID,
				WorkspaceID: identity.WorkspaceID,
				LeadID:      identity.LeadID,
			})
		})
	}

	return uc.finish(ctx, run, event, out, start)
}

func (uc *ProcessEventUseCase) finish(ctx context.Context, run steps, event *entity.RawEvent, out *ProcessEventOutput, start time.Time) (*ProcessEventOutput, error) {
	err := run.must(ctx, StepMarkDone, func(ctx context.Context) error {
		closed, err := uc.Events.MarkProcessed(ctx, event.ID, entity.EventResult{
			Reason:     out.Reason,
			IdentityID: out.IdentityID,
			LeadID:     out.LeadID,
		})
		if err == nil && !closed {
			run.logger.Info("event was closed by a concurrent delivery")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordEventProcessed(string(out.Reason), time.Since(start).Seconds())
	run.logger.Info("event processed",
		zap.String("reason", string(out.Reason)),
		zap.String("lead_id", out.LeadID),
		zap.Bool("is_new_lead", out.IsNewLead),
		zap.Int("assigned_users", len(out.AssignedUsers)),
	)
	return out, nil
}

func leadSummary(lead *entity.Lead) mail.LeadSummary {
	return mail.LeadSummary{
		LeadID:         lead.ID,
		WorkspaceID:    lead.WorkspaceID,
		AssignedUserID: lead.AssignedUserID,
		Name:           lead.FullName(),
		Email:          lead.Email,
		Phone:          lead.Phone,
		JobTitle:       lead.JobTitle,
		CompanyName:    lead.CompanyName,
		CompanyDomain:  lead.CompanyDomain,
		Industry:       lead.Industry,
		City:           lead.City,
		State:          lead.State,
		Zip:            lead.Zip,
		IntentScore:    lead.IntentScore,
		Source:         lead.Source,
	}
}
