package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

type RawEventRepository struct {
	DB *sql.DB
}

func NewRawEventRepository(db *sql.DB) *RawEventRepository {
	return &RawEventRepository{DB: db}
}

const rawEventColumns = `
	id::text, workspace_id, source, COALESCE(partner_id, ''), payload::text,
	processed, COALESCE(error, ''), COALESCE(outcome_reason, ''),
	COALESCE(identity_id::text, ''), COALESCE(lead_id::text, ''),
	attempts, created_at, last_enqueued_at, processed_at`

func (r *RawEventRepository) Create(ctx context.Context, e *entity.RawEvent) error {
	query := `
		INSERT INTO raw_events (id, workspace_id, source, partner_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`
	_, err := r.DB.ExecContext(ctx, query,
		e.ID,
		e.WorkspaceID,
		e.Source,
		nullString(e.PartnerID),
		string(e.Payload),
		e.CreatedAt,
	)
	return translate(err)
}

func (r *RawEventRepository) FindByID(ctx context.Context, id string) (*entity.RawEvent, error) {
	if !validID(id) {
		return nil, entity.ErrNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+rawEventColumns+` FROM raw_events WHERE id = $1`, id)
	e, err := scanRawEvent(row)
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// MarkProcessed closes the event. The processed = FALSE guard makes it the
// idempotency fence: only one delivery can ever flip the flag.
func (r *RawEventRepository) MarkProcessed(ctx context.Context, id string, result entity.EventResult) (bool, error) {
	query := `
		UPDATE raw_events SET
			processed = TRUE,
			outcome_reason = $2,
			identity_id = NULLIF($3, '')::uuid,
			lead_id = NULLIF($4, '')::uuid,
			error = NULL,
			processed_at = NOW()
		WHERE id = $1 AND processed = FALSE
	`
	res, err := r.DB.ExecContext(ctx, query, id, string(result.Reason), result.IdentityID, result.LeadID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RawEventRepository) RecordFailure(ctx context.Context, id string, errMsg string, attempts int) error {
	query := `UPDATE raw_events SET error = $2, attempts = $3 WHERE id = $1 AND processed = FALSE`
	_, err := r.DB.ExecContext(ctx, query, id, errMsg, attempts)
	return err
}

// MarkEnqueued records a manual re-queue so the sweeper leaves the event alone
// for another full stale window.
func (r *RawEventRepository) MarkEnqueued(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return entity.ErrNotFound
	}
	_, err := r.DB.ExecContext(ctx,
		`UPDATE raw_events SET last_enqueued_at = $2 WHERE id = $1 AND processed = FALSE`,
		id, at,
	)
	return err
}

// IsProcessed is the cheap fence check the consumer runs before spending a
// throttle slot on a delivery.
func (r *RawEventRepository) IsProcessed(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, entity.ErrNotFound
	}
	var processed bool
	err := r.DB.QueryRowContext(ctx, `SELECT processed FROM raw_events WHERE id = $1`, id).Scan(&processed)
	if err != nil {
		return false, translate(err)
	}
	return processed, nil
}

// ClaimStale stamps last_enqueued_at on up to limit open events that have not
// been queued since olderThan and returns them. Rows locked by a concurrent
// sweeper are skipped, so each stale event is claimed by one caller per window.
func (r *RawEventRepository) ClaimStale(ctx context.Context, olderThan, now time.Time, limit int) ([]*entity.RawEvent, error) {
	query := `
		UPDATE raw_events SET last_enqueued_at = $2
		WHERE id IN (
			SELECT id FROM raw_events
			WHERE processed = FALSE AND error IS NULL
				AND COALESCE(last_enqueued_at, created_at) < $1
			ORDER BY COALESCE(last_enqueued_at, created_at)
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + rawEventColumns

	rows, err := r.DB.QueryContext(ctx, query, olderThan, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*entity.RawEvent
	for rows.Next() {
		e, err := scanRawEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawEvent(row rowScanner) (*entity.RawEvent, error) {
	var (
		e           entity.RawEvent
		payload     string
		reason      string
		enqueuedAt  sql.NullTime
		processedAt sql.NullTime
	)
	err := row.Scan(
		&e.ID,
		&e.WorkspaceID,
		&e.Source,
		&e.PartnerID,
		&payload,
		&e.Processed,
		&e.Error,
		&reason,
		&e.IdentityID,
		&e.LeadID,
		&e.Attempts,
		&e.CreatedAt,
		&enqueuedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	e.OutcomeReason = entity.OutcomeReason(reason)
	if enqueuedAt.Valid {
		e.LastEnqueuedAt = &enqueuedAt.Time
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	return &e, nil
}
