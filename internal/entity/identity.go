package entity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is the durable record of a person as observed across raw events.
// It belongs to the workspace that first created it.
type Identity struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`

	ProfileID    string `json:"profile_id,omitempty"`
	UUID         string `json:"uuid,omitempty"`
	HemSHA256    string `json:"hem_sha256,omitempty"`
	PrimaryEmail string `json:"primary_email,omitempty"`

	PersonalEmails []string `json:"personal_emails"`
	BusinessEmails []string `json:"business_emails"`
	Phones         []string `json:"phones"`

	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	CompanyDomain   string `json:"company_domain,omitempty"`
	CompanyIndustry string `json:"company_industry,omitempty"`
	JobTitle        string `json:"job_title,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	Zip             string `json:"zip,omitempty"`

	EmailDeliverabilityScore int  `json:"email_deliverability_score"`
	EmailVerified            bool `json:"email_verified"`

	VisitCount int       `json:"visit_count"`
	LastSeenAt time.Time `json:"last_seen_at"`
	LeadID     string    `json:"lead_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewIdentity builds the first sighting of a person using only the fragment's fields.
func NewIdentity(workspaceID string, f Fragment, now time.Time) *Identity {
	return &Identity{
		ID:                       uuid.New().String(),
		WorkspaceID:              workspaceID,
		ProfileID:                f.ProfileID,
		UUID:                     f.UUID,
		HemSHA256:                f.HemSHA256,
		PrimaryEmail:             f.PrimaryEmail,
		PersonalEmails:           UnionStrings(nil, f.PersonalEmails),
		BusinessEmails:           UnionStrings(nil, f.BusinessEmails),
		Phones:                   UnionStrings(nil, f.Phones),
		FirstName:                f.FirstName,
		LastName:                 f.LastName,
		CompanyName:              f.CompanyName,
		CompanyDomain:            f.CompanyDomain,
		CompanyIndustry:          f.CompanyIndustry,
		JobTitle:                 f.JobTitle,
		City:                     f.City,
		State:                    f.State,
		Zip:                      f.Zip,
		EmailDeliverabilityScore: f.DeliverabilityScore,
		EmailVerified:            f.IsVerifiedEmail,
		VisitCount:               1,
		LastSeenAt:               now,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

// Merge folds a later sighting into the identity. Scalars are replaced only by
// non-empty values, matching keys are only filled when missing, and the email
// and phone sets only grow. The SQL merge in the identity repository applies
// the same rules and its tests compare the two.
func (i *Identity) Merge(f Fragment, now time.Time) {
	i.ProfileID = fillMissing(i.ProfileID, f.ProfileID)
	i.UUID = fillMissing(i.UUID, f.UUID)
	i.HemSHA256 = fillMissing(i.HemSHA256, f.HemSHA256)
	i.PrimaryEmail = fillMissing(i.PrimaryEmail, f.PrimaryEmail)

	i.PersonalEmails = UnionStrings(i.PersonalEmails, f.PersonalEmails)
	i.BusinessEmails = UnionStrings(i.BusinessEmails, f.BusinessEmails)
	i.Phones = UnionStrings(i.Phones, f.Phones)

	i.FirstName = overwriteIfSet(i.FirstName, f.FirstName)
	i.LastName = overwriteIfSet(i.LastName, f.LastName)
	i.CompanyName = overwriteIfSet(i.CompanyName, f.CompanyName)
	i.CompanyDomain = overwriteIfSet(i.CompanyDomain, f.CompanyDomain)
	i.CompanyIndustry = overwriteIfSet(i.CompanyIndustry, f.CompanyIndustry)
	i.JobTitle = overwriteIfSet(i.JobTitle, f.JobTitle)
	i.City = overwriteIfSet(i.City, f.City)
	i.State = overwriteIfSet(i.State, f.State)
	i.Zip = overwriteIfSet(i.Zip, f.Zip)

	if f.DeliverabilityScore > 0 {
		i.EmailDeliverabilityScore = f.DeliverabilityScore
	}
	i.EmailVerified = i.EmailVerified || f.IsVerifiedEmail

	i.VisitCount++
	i.LastSeenAt = now
	i.UpdatedAt = now
}

func (i *Identity) HasLead() bool {
	return i.LeadID != ""
}

// UnionStrings appends the values of add missing from base, keeping first-seen order.
func UnionStrings(base, add []string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]struct{}, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func ContainsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func fillMissing(current, incoming string) string {
	if current != "" {
		return current
	}
	return incoming
}

func overwriteIfSet(current, incoming string) string {
	if v := strings.TrimSpace(incoming); v != "" {
		return v
	}
	return current
}

type IdentityRepositoryInterface interface {
	FindByProfileID(ctx context.Context, workspaceID, profileID string) (*Identity, error)
	FindByUUID(ctx context.Context, workspaceID, uuid string) (*Identity, error)
	FindByHashedEmail(ctx context.Context, workspaceID, hem string) (*Identity, error)
	FindByPersonalEmail(ctx context.Context, workspaceID, email string) (*Identity, error)
	Create(ctx context.Context, identity *Identity) error
	// Merge applies Identity.Merge semantics store-side in a single statement and returns the merged row.
	Merge(ctx context.Context, id string, f Fragment) (*Identity, error)
	LinkLead(ctx context.Context, identityID, leadID string) error
}
