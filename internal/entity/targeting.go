package entity

import (
	"context"
	"strings"
	"time"
)

// UserTargeting holds a recipient's standing routing preferences and consumption caps.
// A nil cap means unlimited.
type UserTargeting struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Active      bool   `json:"active"`

	TargetIndustries []string `json:"target_industries"`
	TargetStates     []string `json:"target_states"`
	TargetCities     []string `json:"target_cities"`
	TargetZips       []string `json:"target_zips"`

	DailyLeadCap   *int `json:"daily_lead_cap,omitempty"`
	WeeklyLeadCap  *int `json:"weekly_lead_cap,omitempty"`
	MonthlyLeadCap *int `json:"monthly_lead_cap,omitempty"`

	DailyLeadCount   int `json:"daily_lead_count"`
	WeeklyLeadCount  int `json:"weekly_lead_count"`
	MonthlyLeadCount int `json:"monthly_lead_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (t *UserTargeting) HasGeo() bool {
	return len(t.TargetStates) > 0 || len(t.TargetCities) > 0 || len(t.TargetZips) > 0
}

func (t *UserTargeting) HasIndustry() bool {
	return len(t.TargetIndustries) > 0
}

// AtCapacity reports whether any counter has reached its cap.
func (t *UserTargeting) AtCapacity() bool {
	return reached(t.DailyLeadCount, t.DailyLeadCap) ||
		reached(t.WeeklyLeadCount, t.WeeklyLeadCap) ||
		reached(t.MonthlyLeadCount, t.MonthlyLeadCap)
}

// MatchGeo returns the first criterion the lead satisfies: state code, then city, then zip.
func (t *UserTargeting) MatchGeo(l *Lead) (string, bool) {
	if l.State != "" {
		for _, s := range t.TargetStates {
			if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(l.State)) {
				return "state:" + strings.ToUpper(strings.TrimSpace(l.State)), true
			}
		}
	}
	if l.City != "" {
		for _, c := range t.TargetCities {
			if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(l.City)) {
				return "city:" + strings.TrimSpace(l.City), true
			}
		}
	}
	if l.Zip != "" {
		for _, z := range t.TargetZips {
			if strings.TrimSpace(z) == strings.TrimSpace(l.Zip) {
				return "zip:" + strings.TrimSpace(l.Zip), true
			}
		}
	}
	return "", false
}

func (t *UserTargeting) MatchIndustry(l *Lead) (string, bool) {
	if l.Industry == "" {
		return "", false
	}
	for _, ind := range t.TargetIndustries {
		if strings.EqualFold(strings.TrimSpace(ind), strings.TrimSpace(l.Industry)) {
			return ind, true
		}
	}
	return "", false
}

func reached(count int, limit *int) bool {
	return limit != nil && count >= *limit
}

type TargetingRepositoryInterface interface {
	ListActive(ctx context.Context, workspaceID string) ([]*UserTargeting, error)
	// TryReserve increments all three counters in one conditional write.
	// It returns false without writing when any counter is already at its cap.
	TryReserve(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
	ResetExpiredWindows(ctx context.Context, now time.Time) (int64, error)
}
