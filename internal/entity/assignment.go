package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const AssignmentStatusAssigned = "assigned"

// UserLeadAssignment records that a lead was routed to a user. One row per (lead, user).
type UserLeadAssignment struct {
	ID              string    `json:"id"`
	LeadID          string    `json:"lead_id"`
	UserID          string    `json:"user_id"`
	WorkspaceID     string    `json:"workspace_id"`
	MatchedIndustry string    `json:"matched_industry,omitempty"`
	MatchedGeo      string    `json:"matched_geo,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewUserLeadAssignment(lead *Lead, userID, matchedIndustry, matchedGeo string) *UserLeadAssignment {
	return &UserLeadAssignment{
		ID:              uuid.New().String(),
		LeadID:          lead.ID,
		UserID:          userID,
		WorkspaceID:     lead.WorkspaceID,
		MatchedIndustry: matchedIndustry,
		MatchedGeo:      matchedGeo,
		Status:          AssignmentStatusAssigned,
		CreatedAt:       time.Now(),
	}
}

type AssignmentRepositoryInterface interface {
	// Create returns ErrConflict when the (lead, user) pair already exists.
	Create(ctx context.Context, a *UserLeadAssignment) error
}
