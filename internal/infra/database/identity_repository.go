package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

type IdentityRepository struct {
	DB *sql.DB
}

func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{DB: db}
}

const identityColumns = `
	id::text, workspace_id,
	COALESCE(profile_id, ''), COALESCE(uuid, ''), COALESCE(hem_sha256, ''), COALESCE(primary_email, ''),
	personal_emails, business_emails, phones,
	first_name, last_name, company_name, company_domain, company_industry, job_title,
	city, state, zip,
	email_deliverability_score, email_verified, visit_count, last_seen_at,
	COALESCE(lead_id::text, ''), created_at, updated_at`

// mergeArray unions an incoming text[] into a column, keeping first-seen order.
const mergeArray = `ARRAY(SELECT v FROM (SELECT btrim(e) AS v, n FROM unnest(%[1]s || %[2]s::text[]) WITH ORDINALITY AS t(e, n)) s WHERE v <> '' GROUP BY v ORDER BY MIN(n))`

func (r *IdentityRepository) FindByProfileID(ctx context.Context, workspaceID, profileID string) (*entity.Identity, error) {
	return r.findOne(ctx, `workspace_id = $1 AND profile_id = $2`, workspaceID, profileID)
}

func (r *IdentityRepository) FindByUUID(ctx context.Context, workspaceID, id string) (*entity.Identity, error) {
	return r.findOne(ctx, `workspace_id = $1 AND uuid = $2`, workspaceID, id)
}

func (r *IdentityRepository) FindByHashedEmail(ctx context.Context, workspaceID, hem string) (*entity.Identity, error) {
	return r.findOne(ctx, `workspace_id = $1 AND hem_sha256 = $2`, workspaceID, hem)
}

func (r *IdentityRepository) FindByPersonalEmail(ctx context.Context, workspaceID, email string) (*entity.Identity, error) {
	return r.findOne(ctx, `workspace_id = $1 AND personal_emails @> ARRAY[$2::text]`, workspaceID, email)
}

func (r *IdentityRepository) findOne(ctx context.Context, where string, args ...any) (*entity.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE ` + where + ` ORDER BY created_at LIMIT 1`
	identity, err := scanIdentity(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, translate(err)
	}
	return identity, nil
}

// Create returns entity.ErrConflict when the workspace already has the profile id.
func (r *IdentityRepository) Create(ctx context.Context, i *entity.Identity) error {
	query := `
		INSERT INTO identities (
			id, workspace_id, profile_id, uuid, hem_sha256, primary_email,
			personal_emails, business_emails, phones,
			first_name, last_name, company_name, company_domain, company_industry, job_title,
			city, state, zip,
			email_deliverability_score, email_verified, visit_count, last_seen_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22,
			$23, $24
		)
	`
	_, err := r.DB.ExecContext(ctx, query,
		i.ID, i.WorkspaceID,
		nullString(i.ProfileID), nullString(i.UUID), nullString(i.HemSHA256), nullString(i.PrimaryEmail),
		textArray(i.PersonalEmails), textArray(i.BusinessEmails), textArray(i.Phones),
		i.FirstName, i.LastName, i.CompanyName, i.CompanyDomain, i.CompanyIndustry, i.JobTitle,
		i.City, i.State, i.Zip,
		i.EmailDeliverabilityScore, i.EmailVerified, i.VisitCount, i.LastSeenAt,
		i.CreatedAt, i.UpdatedAt,
	)
	return translate(err)
}

// Merge applies Identity.Merge in one UPDATE so a failed call leaves the row untouched.
func (r *IdentityRepository) Merge(ctx context.Context, id string, f entity.Fragment) (*entity.Identity, error) {
	query := `
		UPDATE identities SET
			profile_id = COALESCE(profile_id, NULLIF($2::text, '')),
			uuid = COALESCE(uuid, NULLIF($3::text, '')),
			hem_sha256 = COALESCE(hem_sha256, NULLIF($4::text, '')),
			primary_email = COALESCE(primary_email, NULLIF($5::text, '')),
			personal_emails = ` + fmt.Sprintf(mergeArray, "personal_emails", "$6") + `,
			business_emails = ` + fmt.Sprintf(mergeArray, "business_emails", "$7") + `,
			phones = ` + fmt.Sprintf(mergeArray, "phones", "$8") + `,
			first_name = COALESCE(NULLIF(btrim($9::text), ''), first_name),
			last_name = COALESCE(NULLIF(btrim($10::text), ''), last_name),
			company_name = COALESCE(NULLIF(btrim($11::text), ''), company_name),
			company_domain = COALESCE(NULLIF(btrim($12::text), ''), company_domain),
			company_industry = COALESCE(NULLIF(btrim($13::text), ''), company_industry),
			job_title = COALESCE(NULLIF(btrim($14::text), ''), job_title),
			city = COALESCE(NULLIF(btrim($15::text), ''), city),
			state = COALESCE(NULLIF(btrim($16::text), ''), state),
			zip = COALESCE(NULLIF(btrim($17::text), ''), zip),
			email_deliverability_score = CASE WHEN $18::int > 0 THEN $18::int ELSE email_deliverability_score END,
			email_verified = email_verified OR $19::boolean,
			visit_count = visit_count + 1,
			last_seen_at = $20,
			updated_at = $20
		WHERE id = $1
		RETURNING ` + identityColumns

	row := r.DB.QueryRowContext(ctx, query,
		id,
		f.ProfileID, f.UUID, f.HemSHA256, f.PrimaryEmail,
		textArray(f.PersonalEmails), textArray(f.BusinessEmails), textArray(f.Phones),
		f.FirstName, f.LastName, f.CompanyName, f.CompanyDomain, f.CompanyIndustry, f.JobTitle,
		f.City, f.State, f.Zip,
		f.DeliverabilityScore, f.IsVerifiedEmail,
		time.Now(),
	)
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, translate(err)
	}
	return identity, nil
}

func (r *IdentityRepository) LinkLead(ctx context.Context, identityID, leadID string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE identities SET lead_id = $2::uuid, updated_at = NOW() WHERE id = $1`,
		identityID, leadID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func scanIdentity(row rowScanner) (*entity.Identity, error) {
	var (
		i                          entity.Identity
		personal, business, phones pq.StringArray
	)
	err := row.Scan(
		&i.ID, &i.WorkspaceID,
		&i.ProfileID, &i.UUID, &i.HemSHA256, &i.PrimaryEmail,
		&personal, &business, &phones,
		&i.FirstName, &i.LastName, &i.CompanyName, &i.CompanyDomain, &i.CompanyIndustry, &i.JobTitle,
		&i.City, &i.State, &i.Zip,
		&i.EmailDeliverabilityScore, &i.EmailVerified, &i.VisitCount, &i.LastSeenAt,
		&i.LeadID, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	i.PersonalEmails = []string(personal)
	i.BusinessEmails = []string(business)
	i.Phones = []string(phones)
	return &i, nil
}
