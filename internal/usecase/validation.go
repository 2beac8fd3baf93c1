package usecase

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	nonDigits   = regexp.MustCompile(`\D`)
	stateCodeRe = regexp.MustCompile(`^[A-Z]{2}$`)
)

func ValidateIngestEventInput(input IngestEventInput) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(input.WorkspaceID) == "" {
		errors = append(errors, ValidationError{"workspace_id", "is required"})
	}

	if strings.TrimSpace(input.Source) == "" {
		errors = append(errors, ValidationError{"source", "is required"})
	} else if len(input.Source) > 64 {
		errors = append(errors, ValidationError{"source", "must not exceed 64 characters"})
	}

	if len(input.Payload) == 0 {
		errors = append(errors, ValidationError{"payload", "is required"})
	} else if !isJSONObject(input.Payload) {
		errors = append(errors, ValidationError{"payload", "must be a JSON object"})
	}

	return errors
}

func isJSONObject(raw []byte) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil
}

// cleanEmail lower-cases and trims an address, returning "" when it does not parse.
func cleanEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return ""
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || !strings.Contains(addr.Address, "@") {
		return ""
	}
	return addr.Address
}

// cleanPhone keeps digits only and rejects anything outside E.164 length.
func cleanPhone(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) == 10 {
		digits = "1" + digits
	}
	if len(digits) < 11 || len(digits) > 15 {
		return ""
	}
	return "+" + digits
}

// stateCodes maps US state names, upper-cased, to their postal codes.
var stateCodes = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR", "CALIFORNIA": "CA",
	"COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE", "DISTRICT OF COLUMBIA": "DC", "FLORIDA": "FL",
	"GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID", "ILLINOIS": "IL", "INDIANA": "IN",
	"IOWA": "IA", "KANSAS": "KS", "KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME",
	"MARYLAND": "MD", "MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN", "MISSISSIPPI": "MS",
	"MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV", "NEW HAMPSHIRE": "NH",
	"NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY", "NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND",
	"OHIO": "OH", "OKLAHOMA": "OK", "OREGON": "OR", "PENNSYLVANIA": "PA", "RHODE ISLAND": "RI",
	"SOUTH CAROLINA": "SC", "SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT",
	"VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA", "WEST VIRGINIA": "WV", "WISCONSIN": "WI",
	"WYOMING": "WY", "PUERTO RICO": "PR",
}

// cleanState returns a two-letter code for either a code or a full state name.
func cleanState(raw string) string {
	state := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if code, ok := stateCodes[state]; ok {
		return code
	}
	if !stateCodeRe.MatchString(state) {
		return ""
	}
	return state
}

func cleanZip(raw string) string {
	zip := strings.TrimSpace(raw)
	if i := strings.IndexByte(zip, '-'); i > 0 {
		zip = zip[:i]
	}
	return zip
}

func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return email[at+1:]
}

var freeMailDomains = map[string]struct{}{
	"gmail.com": {}, "googlemail.com": {}, "yahoo.com": {}, "ymail.com": {},
	"hotmail.com": {}, "outlook.com": {}, "live.com": {}, "msn.com": {},
	"aol.com": {}, "icloud.com": {}, "me.com": {}, "mac.com": {},
	"protonmail.com": {}, "proton.me": {}, "gmx.com": {}, "mail.com": {},
	"comcast.net": {}, "att.net": {}, "verizon.net": {}, "sbcglobal.net": {},
}

func isFreeMail(email string) bool {
	_, ok := freeMailDomains[emailDomain(email)]
	return ok
}
