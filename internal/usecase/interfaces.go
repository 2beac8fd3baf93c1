package usecase

import (
	"context"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/infra/integration/routing"
	"github.com/xavierca1/lead-pipeline/internal/infra/mail"
)

type WorkspaceRouter interface {
	RouteLead(ctx context.Context, input routing.RouteLeadInput) error
}

type NotificationDispatcher interface {
	NotifyNewLead(ctx context.Context, summary mail.LeadSummary) error
}

type IdentityEventPublisher interface {
	PublishIdentityUpdated(ctx context.Context, msg entity.IdentityUpdated) error
}

type AudienceEventPublisher interface {
	PublishAudienceEvent(ctx context.Context, msg entity.AudienceEventReceived) error
}

type IngestEventInput struct {
	WorkspaceID string `json:"workspace_id"`
	Source      string `json:"source"`
	PartnerID   string `json:"partner_id,omitempty"`
	Payload     []byte `json:"-"`
}

type IngestEventOutput struct {
	EventID string `json:"event_id"`
	Queued  bool   `json:"queued"`
}

type ProcessEventOutput struct {
	EventID       string               `json:"event_id"`
	Skipped       bool                 `json:"skipped"`
	Reason        entity.OutcomeReason `json:"reason"`
	IdentityID    string               `json:"identity_id,omitempty"`
	LeadID        string               `json:"lead_id,omitempty"`
	IsNewLead     bool                 `json:"is_new_lead"`
	AssignedUsers []string             `json:"assigned_users,omitempty"`
}
