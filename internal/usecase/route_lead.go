package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/infra/integration/routing"
	"github.com/xavierca1/lead-pipeline/internal/infra/metrics"
)

// LeadRouter fans a new lead out to workspace queues and to users whose
// targeting matches it.
type LeadRouter struct {
	Targeting   entity.TargetingRepositoryInterface
	Assignments entity.AssignmentRepositoryInterface
	Leads       entity.LeadRepositoryInterface
	Workspace   WorkspaceRouter
	Logger      *zap.Logger
}

func NewLeadRouter(
	targeting entity.TargetingRepositoryInterface,
	assignments entity.AssignmentRepositoryInterface,
	leads entity.LeadRepositoryInterface,
	workspace WorkspaceRouter,
	logger *zap.Logger,
) *LeadRouter {
	return &LeadRouter{
		Targeting:   targeting,
		Assignments: assignments,
		Leads:       leads,
		Workspace:   workspace,
		Logger:      logger,
	}
}

// RouteToUsers walks the workspace's active targeting rows in order. Failures
// for one user are logged and the loop moves on; only a failure to list the
// rows is returned. It returns the users that received the lead.
func (r *LeadRouter) RouteToUsers(ctx context.Context, lead *entity.Lead) ([]string, error) {
	targets, err := r.Targeting.ListActive(ctx, lead.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("list targeting for workspace %s: %w", lead.WorkspaceID, err)
	}

	var assigned []string
	for _, t := range targets {
		log := r.Logger.With(zap.String("lead_id", lead.ID), zap.String("user_id", t.UserID))

		industry, geo, ok := matchTargeting(t, lead)
		if !ok {
			continue
		}

		done, err := r.assign(ctx, lead, t.UserID, industry, geo)
		if err != nil {
			log.Warn("user routing failed", zap.Error(err))
		}
		if done {
			assigned = append(assigned, t.UserID)
			log.Info("lead assigned", zap.String("matched_industry", industry), zap.String("matched_geo", geo))
		}
	}
	return assigned, nil
}

// matchTargeting applies the cap, geo and industry filters. A user with no
// configured criteria never receives auto-routed leads.
func matchTargeting(t *entity.UserTargeting, lead *entity.Lead) (industry, geo string, ok bool) {
	if t.AtCapacity() {
		return "", "", false
	}
	if !t.HasGeo() && !t.HasIndustry() {
		return "", "", false
	}
	if t.HasGeo() {
		if geo, ok = t.MatchGeo(lead); !ok {
			return "", "", false
		}
	}
	if t.HasIndustry() {
		if industry, ok = t.MatchIndustry(lead); !ok {
			return "", "", false
		}
	}
	return industry, geo, true
}

// assign reserves capacity first so counters can never pass their caps, then
// records the assignment. A duplicate assignment gives the reservation back.
func (r *LeadRouter) assign(ctx context.Context, lead *entity.Lead, userID, industry, geo string) (bool, error) {
	reserved, err := r.Targeting.TryReserve(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("reserve capacity: %w", err)
	}
	if !reserved {
		return false, nil
	}

	err = r.Assignments.Create(ctx, entity.NewUserLeadAssignment(lead, userID, industry, geo))
	if err != nil {
		if releaseErr := r.Targeting.Release(ctx, userID); releaseErr != nil {
			r.Logger.Error("failed to release reserved capacity", zap.String("user_id", userID), zap.Error(releaseErr))
		}
		if errors.Is(err, entity.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("create assignment: %w", err)
	}
	metrics.RecordAssignment()

	if lead.AssignedUserID == "" {
		set, err := r.Leads.AssignIfUnset(ctx, lead.ID, userID)
		if err != nil {
			return true, fmt.Errorf("set assigned user: %w", err)
		}
		if set {
			lead.AssignedUserID = userID
		}
	}
	return true, nil
}

func (r *LeadRouter) RouteToWorkspace(ctx context.Context, lead *entity.Lead) error {
	if r.Workspace == nil {
		return nil
	}
	return r.Workspace.RouteLead(ctx, routing.RouteLeadInput{
		LeadID:            lead.ID,
		SourceWorkspaceID: lead.WorkspaceID,
		UserID:            lead.AssignedUserID,
	})
}
