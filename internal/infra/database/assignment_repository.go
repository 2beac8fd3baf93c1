package database

import (
	"context"
	"database/sql"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

type AssignmentRepository struct {
	DB *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: db}
}

func (r *AssignmentRepository) Create(ctx context.Context, a *entity.UserLeadAssignment) error {
	query := `
		INSERT INTO user_lead_assignments (
			id, lead_id, user_id, workspace_id, matched_industry, matched_geo, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.DB.ExecContext(ctx, query,
		a.ID, a.LeadID, a.UserID, a.WorkspaceID,
		a.MatchedIndustry, a.MatchedGeo, a.Status, a.CreatedAt,
	)
	return translate(err)
}

func (r *AssignmentRepository) CountByLead(ctx context.Context, leadID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_lead_assignments WHERE lead_id = $1`, leadID).Scan(&n)
	return n, err
}
