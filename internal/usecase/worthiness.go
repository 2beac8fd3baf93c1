package usecase

import "github.com/xavierca1/lead-pipeline/internal/entity"

type WorthinessInput struct {
	EventType           entity.EventType
	DeliverabilityScore int
	HasVerifiedEmail    bool
	HasBusinessEmail    bool
	HasPhone            bool
	HasName             bool
	HasCompany          bool
}

const worthinessThreshold = 60

// IsLeadWorthy is the lead qualification policy. A sighting needs enough
// weighted signal and at least a name or a company to become a lead.
func IsLeadWorthy(in WorthinessInput) bool {
	if !in.HasName && !in.HasCompany {
		return false
	}
	return worthinessScore(in) >= worthinessThreshold
}

func worthinessScore(in WorthinessInput) int {
	score := 0
	if in.HasVerifiedEmail {
		score += 30
	}
	switch {
	case in.DeliverabilityScore >= 80:
		score += 20
	case in.DeliverabilityScore >= 50:
		score += 10
	}
	if in.HasBusinessEmail {
		score += 20
	}
	if in.HasPhone {
		score += 10
	}
	if in.HasName {
		score += 10
	}
	if in.HasCompany {
		score += 10
	}
	switch in.EventType {
	case entity.EventFormSubmit:
		score += 20
	case entity.EventIdentityResolved:
		score += 10
	}
	return score
}

// worthinessFor reads the gate inputs from the merged identity so a person
// qualifies on everything known about them, in the context of this event.
func worthinessFor(eventType entity.EventType, identity *entity.Identity) WorthinessInput {
	return WorthinessInput{
		EventType:           eventType,
		DeliverabilityScore: identity.EmailDeliverabilityScore,
		HasVerifiedEmail:    identity.EmailVerified,
		HasBusinessEmail:    len(identity.BusinessEmails) > 0,
		HasPhone:            len(identity.Phones) > 0,
		HasName:             identity.FirstName != "" || identity.LastName != "",
		HasCompany:          identity.CompanyName != "" || identity.CompanyDomain != "",
	}
}

// IntentScore weights the triggering event and repeat visits, capped at 100.
func IntentScore(eventType entity.EventType, visitCount int) int {
	base := 5
	switch eventType {
	case entity.EventFormSubmit:
		base = 60
	case entity.EventIdentityResolved:
		base = 30
	case entity.EventPageView:
		base = 10
	}
	bonus := 0
	if visitCount > 1 {
		bonus = (visitCount - 1) * 5
	}
	if bonus > 30 {
		bonus = 30
	}
	if base+bonus > 100 {
		return 100
	}
	return base + bonus
}
