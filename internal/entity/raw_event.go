package entity

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawEvent is an inbound provider payload stored by the ingest API.
// Once Processed is true the row is never mutated again.
type RawEvent struct {
	ID             string          `json:"id"`
	WorkspaceID    string          `json:"workspace_id"`
	Source         string          `json:"source"`
	PartnerID      string          `json:"partner_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Processed      bool            `json:"processed"`
	Error          string          `json:"error,omitempty"`
	OutcomeReason  OutcomeReason   `json:"outcome_reason,omitempty"`
	IdentityID     string          `json:"identity_id,omitempty"`
	LeadID         string          `json:"lead_id,omitempty"`
	Attempts       int             `json:"attempts"`
	CreatedAt      time.Time       `json:"created_at"`
	LastEnqueuedAt *time.Time      `json:"last_enqueued_at,omitempty"` // last sweeper or replay re-queue
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

func NewRawEvent(workspaceID, source, partnerID string, payload json.RawMessage) *RawEvent {
	return &RawEvent{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Source:      source,
		PartnerID:   strings.TrimSpace(partnerID),
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
}

// OwnershipScope derives the dedup boundary from the ingestion source.
func (e *RawEvent) OwnershipScope() OwnershipScope {
	if e.PartnerID != "" {
		return ScopePartner
	}
	return ScopePlatform
}

// EventResult is what the pipeline writes when it closes a RawEvent.
type EventResult struct {
	Reason     OutcomeReason
	IdentityID string
	LeadID     string
}

type RawEventRepositoryInterface interface {
	Create(ctx context.Context, e *RawEvent) error
	FindByID(ctx context.Context, id string) (*RawEvent, error)
	// MarkProcessed returns false when the event had already been closed by another delivery.
	MarkProcessed(ctx context.Context, id string, result EventResult) (bool, error)
	RecordFailure(ctx context.Context, id string, errMsg string, attempts int) error
	MarkEnqueued(ctx context.Context, id string, at time.Time) error
}
