package entity

// AudienceEventReceived is the inbound unit of work: the RawEvent is fetched by id.
type AudienceEventReceived struct {
	EventID     string `json:"event_id"`
	WorkspaceID string `json:"workspace_id"`
	Source      string `json:"source"`
}

// IdentityUpdated is emitted for every event that resolved to an identity.
type IdentityUpdated struct {
	IdentityID  string `json:"identity_id"`
	WorkspaceID string `json:"workspace_id"`
	LeadID      string `json:"lead_id,omitempty"`
}
