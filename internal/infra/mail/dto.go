package mail

// LeadSummary is the flattened contact and firmographic view sent to recipients of a new lead.
type LeadSummary struct {
	LeadID         string
	WorkspaceID    string
	AssignedUserID string
	Name           string
	Email          string
	Phone          string
	JobTitle       string
	CompanyName    string
	CompanyDomain  string
	Industry       string
	City           string
	State          string
	Zip            string
	IntentScore    int
	Source         string
}

type LeadNotifier struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}
