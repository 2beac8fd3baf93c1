package usecase

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

// Provider field aliases. Lookups are case-insensitive and also search the
// nested "resolution" object some providers wrap identity data in.
var (
	fieldEventType      = []string{"event_type", "type", "event"}
	fieldProfileID      = []string{"profile_id"}
	fieldUUID           = []string{"uuid", "anonymous_id", "visitor_id"}
	fieldHem            = []string{"hem_sha256", "sha256_personal_email"}
	fieldEmail          = []string{"email"}
	fieldPersonalEmails = []string{"personal_emails", "personal_email"}
	fieldVerifiedEmails = []string{"personal_verified_emails"}
	fieldBusinessEmails = []string{"business_email", "business_verified_emails", "business_emails"}
	fieldPhones         = []string{"mobile_phone", "direct_number", "personal_phone", "phone"}
	fieldFirstName      = []string{"first_name"}
	fieldLastName       = []string{"last_name"}
	fieldCompanyName    = []string{"company_name"}
	fieldCompanyDomain  = []string{"company_domain"}
	fieldIndustry       = []string{"company_industry", "industry"}
	fieldJobTitle       = []string{"job_title"}
	fieldCity           = []string{"personal_city", "city"}
	fieldState          = []string{"personal_state", "state"}
	fieldZip            = []string{"personal_zip", "zip", "postal_code"}
	fieldEmailStatus    = []string{"personal_email_validation_status", "business_email_validation_status", "email_validation_status"}
	fieldDeliverability = []string{"email_deliverability_score", "deliverability_score"}
)

var verifiedStatuses = map[string]int{
	"valid":       90,
	"verified":    90,
	"deliverable": 90,
	"valid (esp)": 80,
	"catch-all":   50,
	"catch_all":   50,
	"accept_all":  50,
	"risky":       40,
	"unknown":     30,
	"invalid":     0,
}

// Normalize turns a provider payload into a Fragment. It never fails: input
// that is not a JSON object yields an empty fragment of type unknown.
func Normalize(payload []byte) entity.Fragment {
	if !gjson.ValidBytes(payload) {
		return entity.Fragment{EventType: entity.EventUnknown}
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return entity.Fragment{EventType: entity.EventUnknown}
	}
	p := newPayloadFields(root)

	f := entity.Fragment{
		ProfileID:       p.str(fieldProfileID),
		UUID:            p.str(fieldUUID),
		HemSHA256:       strings.ToLower(p.str(fieldHem)),
		FirstName:       p.str(fieldFirstName),
		LastName:        p.str(fieldLastName),
		CompanyName:     p.str(fieldCompanyName),
		CompanyIndustry: p.str(fieldIndustry),
		JobTitle:        p.str(fieldJobTitle),
		City:            p.str(fieldCity),
		State:           cleanState(p.str(fieldState)),
		Zip:             cleanZip(p.str(fieldZip)),
	}

	verified := cleanEmails(p.list(fieldVerifiedEmails))
	personal := cleanEmails(p.list(fieldPersonalEmails))
	business := cleanEmails(p.list(fieldBusinessEmails))
	for _, email := range cleanEmails(p.list(fieldEmail)) {
		if isFreeMail(email) {
			personal = append(personal, email)
		} else {
			business = append(business, email)
		}
	}
	f.PersonalEmails = entity.UnionStrings(verified, personal)
	f.BusinessEmails = entity.UnionStrings(nil, business)

	for _, raw := range p.list(fieldPhones) {
		if phone := cleanPhone(raw); phone != "" {
			f.Phones = entity.UnionStrings(f.Phones, []string{phone})
		}
	}

	switch {
	case len(f.BusinessEmails) > 0:
		f.PrimaryEmail = f.BusinessEmails[0]
	case len(f.PersonalEmails) > 0:
		f.PrimaryEmail = f.PersonalEmails[0]
	}

	f.CompanyDomain = NormalizeDomain(p.str(fieldCompanyDomain))
	if f.CompanyDomain == "" && len(f.BusinessEmails) > 0 {
		f.CompanyDomain = emailDomain(f.BusinessEmails[0])
	}

	status := strings.ToLower(p.str(fieldEmailStatus))
	statusScore, knownStatus := verifiedStatuses[status]
	f.IsVerifiedEmail = len(verified) > 0 || (knownStatus && statusScore >= 80)
	f.DeliverabilityScore = p.score(fieldDeliverability)
	if f.DeliverabilityScore == 0 && knownStatus {
		f.DeliverabilityScore = statusScore
	}

	f.EventType = classifyEventType(p.str(fieldEventType), f)
	return f
}

func classifyEventType(raw string, f entity.Fragment) entity.EventType {
	switch strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(raw))) {
	case "page_view", "pageview", "view", "visit":
		return entity.EventPageView
	case "form_submit", "form_submission", "form", "submit":
		return entity.EventFormSubmit
	case "identity_resolved", "resolution", "identified", "resolved", "authentication":
		return entity.EventIdentityResolved
	case "":
		if f.HasKey() {
			return entity.EventIdentityResolved
		}
	}
	return entity.EventUnknown
}

type payloadFields struct {
	values map[string]gjson.Result
}

func newPayloadFields(root gjson.Result) payloadFields {
	values := make(map[string]gjson.Result)
	collect := func(obj gjson.Result) {
		obj.ForEach(func(key, value gjson.Result) bool {
			k := strings.ToLower(strings.TrimSpace(key.String()))
			if _, exists := values[k]; !exists && value.Exists() && value.Type != gjson.Null {
				values[k] = value
			}
			return true
		})
	}
	collect(root)
	if nested := root.Get("resolution"); nested.IsObject() {
		collect(nested)
	}
	return payloadFields{values: values}
}

func (p payloadFields) str(keys []string) string {
	for _, k := range keys {
		v, ok := p.values[k]
		if !ok {
			continue
		}
		if v.IsArray() {
			for _, item := range v.Array() {
				if s := strings.TrimSpace(item.String()); s != "" {
					return s
				}
			}
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// list accepts arrays and comma separated strings across all aliases.
func (p payloadFields) list(keys []string) []string {
	var out []string
	for _, k := range keys {
		v, ok := p.values[k]
		if !ok {
			continue
		}
		if v.IsArray() {
			for _, item := range v.Array() {
				out = append(out, item.String())
			}
			continue
		}
		out = append(out, strings.Split(v.String(), ",")...)
	}
	return out
}

func (p payloadFields) score(keys []string) int {
	for _, k := range keys {
		v, ok := p.values[k]
		if !ok {
			continue
		}
		var n int
		if v.Type == gjson.Number {
			n = int(v.Int())
		} else if parsed, err := strconv.Atoi(strings.TrimSpace(v.String())); err == nil {
			n = parsed
		} else {
			continue
		}
		if n < 0 {
			n = 0
		}
		if n > 100 {
			n = 100
		}
		return n
	}
	return 0
}

func cleanEmails(raw []string) []string {
	var out []string
	for _, r := range raw {
		if email := cleanEmail(r); email != "" {
			out = append(out, email)
		}
	}
	return entity.UnionStrings(nil, out)
}
