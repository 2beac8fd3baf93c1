package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

type TargetingRepository struct {
	DB *sql.DB
}

func NewTargetingRepository(db *sql.DB) *TargetingRepository {
	return &TargetingRepository{DB: db}
}

func (r *TargetingRepository) ListActive(ctx context.Context, workspaceID string) ([]*entity.UserTargeting, error) {
	query := `
		SELECT user_id, workspace_id, active,
			target_industries, target_states, target_cities, target_zips,
			daily_lead_cap, weekly_lead_cap, monthly_lead_cap,
			daily_lead_count, weekly_lead_count, monthly_lead_count,
			updated_at
		FROM user_targeting
		WHERE workspace_id = $1 AND active
		ORDER BY user_id
	`
	rows, err := r.DB.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.UserTargeting
	for rows.Next() {
		var (
			t                              entity.UserTargeting
			industries, states, cities, zs pq.StringArray
			daily, weekly, monthly         sql.NullInt64
		)
		err := rows.Scan(
			&t.UserID, &t.WorkspaceID, &t.Active,
			&industries, &states, &cities, &zs,
			&daily, &weekly, &monthly,
			&t.DailyLeadCount, &t.WeeklyLeadCount, &t.MonthlyLeadCount,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		t.TargetIndustries = []string(industries)
		t.TargetStates = []string(states)
		t.TargetCities = []string(cities)
		t.TargetZips = []string(zs)
		t.DailyLeadCap = intOrNil(daily)
		t.WeeklyLeadCap = intOrNil(weekly)
		t.MonthlyLeadCap = intOrNil(monthly)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// TryReserve checks every cap and increments every counter in one statement,
// so concurrent deliveries can never push a counter past its cap.
func (r *TargetingRepository) TryReserve(ctx context.Context, userID string) (bool, error) {
	query := `
		UPDATE user_targeting SET
			daily_lead_count = daily_lead_count + 1,
			weekly_lead_count = weekly_lead_count + 1,
			monthly_lead_count = monthly_lead_count + 1,
			updated_at = NOW()
		WHERE user_id = $1
			AND active
			AND (daily_lead_cap IS NULL OR daily_lead_count < daily_lead_cap)
			AND (weekly_lead_cap IS NULL OR weekly_lead_count < weekly_lead_cap)
			AND (monthly_lead_cap IS NULL OR monthly_lead_count < monthly_lead_cap)
	`
	res, err := r.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TargetingRepository) Release(ctx context.Context, userID string) error {
	query := `
		UPDATE user_targeting SET
			daily_lead_count = GREATEST(daily_lead_count - 1, 0),
			weekly_lead_count = GREATEST(weekly_lead_count - 1, 0),
			monthly_lead_count = GREATEST(monthly_lead_count - 1, 0),
			updated_at = NOW()
		WHERE user_id = $1
	`
	_, err := r.DB.ExecContext(ctx, query, userID)
	return err
}

var counterWindows = []struct {
	unit, count, start string
}{
	{"day", "daily_lead_count", "daily_window_start"},
	{"week", "weekly_lead_count", "weekly_window_start"},
	{"month", "monthly_lead_count", "monthly_window_start"},
}

// ResetExpiredWindows zeroes every counter whose window started before the
// current one, one UPDATE per window. It returns the number of rows touched.
func (r *TargetingRepository) ResetExpiredWindows(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, w := range counterWindows {
		query := `UPDATE user_targeting SET ` + w.count + ` = 0, ` + w.start + ` = date_trunc('` + w.unit + `', $1::timestamptz), updated_at = NOW()
			WHERE ` + w.start + ` < date_trunc('` + w.unit + `', $1::timestamptz)`
		res, err := r.DB.ExecContext(ctx, query, now)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
