package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OwnershipScope separates platform inventory from partner inventory.
// Deduplication never matches across scopes.
type OwnershipScope string

const (
	ScopePlatform OwnershipScope = "platform"
	ScopePartner  OwnershipScope = "partner"
)

const (
	EnrichmentPending   = "PENDING"
	DeliveryUndelivered = "UNDELIVERED"
)

type Lead struct {
	ID             string         `json:"id"`
	WorkspaceID    string         `json:"workspace_id"`
	OwnershipScope OwnershipScope `json:"ownership_scope"`
	PartnerID      string         `json:"partner_id,omitempty"`

	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`

	CompanyName   string `json:"company_name,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`
	Industry      string `json:"industry,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Zip           string `json:"zip,omitempty"`

	IntentScore      int    `json:"intent_score"`
	HashKey          string `json:"hash_key"`
	Source           string `json:"source"`
	EnrichmentStatus string `json:"enrichment_status"` // PENDING, ENRICHED
	DeliveryStatus   string `json:"delivery_status"`   // UNDELIVERED, DELIVERED
	AssignedUserID   string `json:"assigned_user_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLeadFromIdentity copies the contact and firmographic view of an identity into a new lead.
func NewLeadFromIdentity(identity *Identity, scope OwnershipScope, partnerID, source, hashKey string, intentScore int) *Lead {
	now := time.Now()
	phone := ""
	if len(identity.Phones) > 0 {
		phone = identity.Phones[0]
	}
	return &Lead{
		ID:               uuid.New().String(),
		WorkspaceID:      identity.WorkspaceID,
		OwnershipScope:   scope,
		PartnerID:        partnerID,
		FirstName:        identity.FirstName,
		LastName:         identity.LastName,
		Email:            identity.PrimaryEmail,
		Phone:            phone,
		JobTitle:         identity.JobTitle,
		CompanyName:      identity.CompanyName,
		CompanyDomain:    identity.CompanyDomain,
		Industry:         identity.CompanyIndustry,
		City:             identity.City,
		State:            identity.State,
		Zip:              identity.Zip,
		IntentScore:      intentScore,
		HashKey:          hashKey,
		Source:           source,
		EnrichmentStatus: EnrichmentPending,
		DeliveryStatus:   DeliveryUndelivered,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Enrich folds newer values into the lead without erasing known data.
// Intent score never decreases. LeadRepository.Enrich mirrors it in SQL.
func (l *Lead) Enrich(from *Lead) {
	l.FirstName = overwriteIfSet(l.FirstName, from.FirstName)
	l.LastName = overwriteIfSet(l.LastName, from.LastName)
	l.Email = fillMissing(l.Email, from.Email)
	l.Phone = fillMissing(l.Phone, from.Phone)
	l.JobTitle = overwriteIfSet(l.JobTitle, from.JobTitle)
	l.CompanyName = overwriteIfSet(l.CompanyName, from.CompanyName)
	l.CompanyDomain = overwriteIfSet(l.CompanyDomain, from.CompanyDomain)
	l.Industry = overwriteIfSet(l.Industry, from.Industry)
	l.City = overwriteIfSet(l.City, from.City)
	l.State = overwriteIfSet(l.State, from.State)
	l.Zip = overwriteIfSet(l.Zip, from.Zip)
	if from.IntentScore > l.IntentScore {
		l.IntentScore = from.IntentScore
	}
	l.UpdatedAt = time.Now()
}

func (l *Lead) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

type LeadRepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*Lead, error)
	FindByHashKey(ctx context.Context, workspaceID string, scope OwnershipScope, hashKey string) (*Lead, error)
	// InsertAndLink stores the lead and sets the identity's lead_id atomically.
	// It returns ErrConflict when another lead already owns the hash key in
	// the same scope, and writes nothing in that case.
	InsertAndLink(ctx context.Context, lead *Lead, identityID string) error
	// Enrich applies Lead.Enrich semantics store-side.
	Enrich(ctx context.Context, id string, patch *Lead) error
	// AssignIfUnset sets assigned_user_id only when it is still empty.
	AssignIfUnset(ctx context.Context, leadID, userID string) (bool, error)
}
