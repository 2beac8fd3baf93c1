package entity

import "strings"

type EventType string

const (
	EventPageView         EventType = "page_view"
	EventFormSubmit       EventType = "form_submit"
	EventIdentityResolved EventType = "identity_resolved"
	EventUnknown          EventType = "unknown"
)

// Fragment is the provider-agnostic shape of one sighting of a person.
type Fragment struct {
	EventType EventType `json:"event_type"`

	// Matching keys, in resolver priority order.
	ProfileID    string `json:"profile_id,omitempty"`
	UUID         string `json:"uuid,omitempty"`
	HemSHA256    string `json:"hem_sha256,omitempty"`
	PrimaryEmail string `json:"primary_email,omitempty"`

	PersonalEmails []string `json:"personal_emails,omitempty"`
	BusinessEmails []string `json:"business_emails,omitempty"`
	Phones         []string `json:"phones,omitempty"`

	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	CompanyDomain   string `json:"company_domain,omitempty"`
	CompanyIndustry string `json:"company_industry,omitempty"`
	JobTitle        string `json:"job_title,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	Zip             string `json:"zip,omitempty"`

	IsVerifiedEmail     bool `json:"is_verified_email"`
	DeliverabilityScore int  `json:"deliverability_score"`
}

func (f Fragment) HasKey() bool {
	return f.ProfileID != "" || f.UUID != "" || f.HemSHA256 != "" || f.PrimaryEmail != ""
}

func (f Fragment) HasName() bool {
	return strings.TrimSpace(f.FirstName+f.LastName) != ""
}

func (f Fragment) HasCompany() bool {
	return f.CompanyName != "" || f.CompanyDomain != ""
}

func (f Fragment) HasBusinessEmail() bool {
	return len(f.BusinessEmails) > 0
}

func (f Fragment) PrimaryPhone() string {
	if len(f.Phones) == 0 {
		return ""
	}
	return f.Phones[0]
}
