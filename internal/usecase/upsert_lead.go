package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/infra/metrics"
)

type UpsertLeadInput struct {
	Identity  *entity.Identity
	EventType entity.EventType
	Worthy    bool
	Scope     entity.OwnershipScope
	PartnerID string
	Source    string
}

type UpsertLeadOutput struct {
	Lead      *entity.Lead // only set when IsNewLead
	LeadID    string
	IsNewLead bool
	Reason    entity.OutcomeReason
}

type LeadUpserter struct {
	Leads      entity.LeadRepositoryInterface
	Identities entity.IdentityRepositoryInterface
	Dedup      *Deduplicator
}

func NewLeadUpserter(leads entity.LeadRepositoryInterface, identities entity.IdentityRepositoryInterface) *LeadUpserter {
	return &LeadUpserter{
		Leads:      leads,
		Identities: identities,
		Dedup:      NewDeduplicator(leads),
	}
}

func (u *LeadUpserter) Upsert(ctx context.Context, in UpsertLeadInput) (*UpsertLeadOutput, error) {
	identity := in.Identity
	candidate := entity.NewLeadFromIdentity(identity, in.Scope, in.PartnerID, in.Source, "",
		IntentScore(in.EventType, identity.VisitCount))

	// A qualified lead keeps enriching from every later sighting, worthy or not.
	if identity.HasLead() {
		if err := u.Leads.Enrich(ctx, identity.LeadID, candidate); err != nil {
			return nil, fmt.Errorf("enrich lead %s: %w", identity.LeadID, err)
		}
		return &UpsertLeadOutput{LeadID: identity.LeadID, Reason: entity.ReasonUpdated}, nil
	}

	if identity.PrimaryEmail == "" {
		return &UpsertLeadOutput{Reason: entity.ReasonNoEmail}, nil
	}
	if !in.Worthy {
		return &UpsertLeadOutput{Reason: entity.ReasonNotLeadWorthy}, nil
	}

	dedup, err := u.Dedup.Check(ctx, identity.WorkspaceID, in.Scope, identity.PrimaryEmail, identity.CompanyDomain, candidate.Phone)
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if dedup.IsDuplicate {
		return u.linkDuplicate(ctx, identity, dedup.ExistingLeadID)
	}

	candidate.HashKey = dedup.HashKey
	err = u.Leads.InsertAndLink(ctx, candidate, identity.ID)
	if errors.Is(err, entity.ErrConflict) {
		// Lost the insert race to a concurrent fragment for the same person.
		existing, findErr := u.Leads.FindByHashKey(ctx, identity.WorkspaceID, in.Scope, dedup.HashKey)
		if findErr != nil {
			return nil, fmt.Errorf("find lead after conflict: %w", findErr)
		}
		return u.linkDuplicate(ctx, identity, existing.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert lead for identity %s: %w", identity.ID, err)
	}
	identity.LeadID = candidate.ID
	metrics.RecordLeadCreated()

	return &UpsertLeadOutput{
		Lead:      candidate,
		LeadID:    candidate.ID,
		IsNewLead: true,
		Reason:    entity.ReasonCreated,
	}, nil
}

func (u *LeadUpserter) linkDuplicate(ctx context.Context, identity *entity.Identity, leadID string) (*UpsertLeadOutput, error) {
	if err := u.Identities.LinkLead(ctx, identity.ID, leadID); err != nil {
		return nil, fmt.Errorf("link identity %s to existing lead %s: %w", identity.ID, leadID, err)
	}
	identity.LeadID = leadID
	return &UpsertLeadOutput{LeadID: leadID, Reason: entity.ReasonDuplicate}, nil
}
