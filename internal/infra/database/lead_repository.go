package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

const leadColumns = `
	id::text, workspace_id, ownership_scope, COALESCE(partner_id, ''),
	first_name, last_name, email, phone, job_title,
	company_name, company_domain, industry, city, state, zip,
	intent_score, hash_key, source, enrichment_status, delivery_status,
	COALESCE(assigned_user_id, ''), created_at, updated_at`

func (r *LeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	if !validID(id) {
		return nil, entity.ErrNotFound
	}
	lead, err := scanLead(r.DB.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return lead, nil
}

func (r *LeadRepository) FindByHashKey(ctx context.Context, workspaceID string, scope entity.OwnershipScope, hashKey string) (*entity.Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE workspace_id = $1 AND ownership_scope = $2 AND hash_key = $3`
	lead, err := scanLead(r.DB.QueryRowContext(ctx, query, workspaceID, string(scope), hashKey))
	if err != nil {
		return nil, translate(err)
	}
	return lead, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Insert relies on the (workspace_id, ownership_scope, hash_key) constraint:
// when another delivery already owns the key nothing is written and
// entity.ErrConflict is returned.
func (r *LeadRepository) Insert(ctx context.Context, l *entity.Lead) error {
	return insertLead(ctx, r.DB, l)
}

// InsertAndLink inserts the lead and points the identity at it in one
// transaction. A failed link rolls the insert back, so a retried event never
// finds its own unlinked lead as a duplicate.
func (r *LeadRepository) InsertAndLink(ctx context.Context, l *entity.Lead, identityID string) error {
	if !validID(identityID) {
		return entity.ErrNotFound
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := insertLead(ctx, tx, l); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE identities SET lead_id = $2::uuid, updated_at = NOW() WHERE id = $1`,
		identityID, l.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func insertLead(ctx context.Context, q queryRower, l *entity.Lead) error {
	query := `
		INSERT INTO leads (
			id, workspace_id, ownership_scope, partner_id,
			first_name, last_name, email, phone, job_title,
			company_name, company_domain, industry, city, state, zip,
			intent_score, hash_key, source, enrichment_status, delivery_status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22
		)
		ON CONFLICT (workspace_id, ownership_scope, hash_key) DO NOTHING
		RETURNING created_at
	`
	err := q.QueryRowContext(ctx, query,
		l.ID, l.WorkspaceID, string(l.OwnershipScope), nullString(l.PartnerID),
		l.FirstName, l.LastName, l.Email, l.Phone, l.JobTitle,
		l.CompanyName, l.CompanyDomain, l.Industry, l.City, l.State, l.Zip,
		l.IntentScore, l.HashKey, l.Source, l.EnrichmentStatus, l.DeliveryStatus,
		l.CreatedAt, l.UpdatedAt,
	).Scan(&l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrConflict
	}
	return translate(err)
}

// Enrich applies Lead.Enrich store-side.
func (r *LeadRepository) Enrich(ctx context.Context, id string, patch *entity.Lead) error {
	query := `
		UPDATE leads SET
			first_name = COALESCE(NULLIF(btrim($2::text), ''), first_name),
			last_name = COALESCE(NULLIF(btrim($3::text), ''), last_name),
			email = CASE WHEN email = '' THEN $4::text ELSE email END,
			phone = CASE WHEN phone = '' THEN $5::text ELSE phone END,
			job_title = COALESCE(NULLIF(btrim($6::text), ''), job_title),
			company_name = COALESCE(NULLIF(btrim($7::text), ''), company_name),
			company_domain = COALESCE(NULLIF(btrim($8::text), ''), company_domain),
			industry = COALESCE(NULLIF(btrim($9::text), ''), industry),
			city = COALESCE(NULLIF(btrim($10::text), ''), city),
			state = COALESCE(NULLIF(btrim($11::text), ''), state),
			zip = COALESCE(NULLIF(btrim($12::text), ''), zip),
			intent_score = GREATEST(intent_score, $13::int),
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.DB.ExecContext(ctx, query,
		id,
		patch.FirstName, patch.LastName, patch.Email, patch.Phone, patch.JobTitle,
		patch.CompanyName, patch.CompanyDomain, patch.Industry, patch.City, patch.State, patch.Zip,
		patch.IntentScore,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (r *LeadRepository) AssignIfUnset(ctx context.Context, leadID, userID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE leads SET assigned_user_id = $2, updated_at = NOW() WHERE id = $1 AND assigned_user_id IS NULL`,
		leadID, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanLead(row rowScanner) (*entity.Lead, error) {
	var (
		l     entity.Lead
		scope string
	)
	err := row.Scan(
		&l.ID, &l.WorkspaceID, &scope, &l.PartnerID,
		&l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.JobTitle,
		&l.CompanyName, &l.CompanyDomain, &l.Industry, &l.City, &l.State, &l.Zip,
		&l.IntentScore, &l.HashKey, &l.Source, &l.EnrichmentStatus, &l.DeliveryStatus,
		&l.AssignedUserID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.OwnershipScope = entity.OwnershipScope(scope)
	return &l, nil
}
