package routing

// RouteLeadInput is the body of the workspace routing call.
type RouteLeadInput struct {
	LeadID            string `json:"leadId"`
	SourceWorkspaceID string `json:"sourceWorkspaceId"`
	UserID            string `json:"userId,omitempty"`
}

type routeLeadResponse struct {
	Queued bool   `json:"queued"`
	Queue  string `json:"queue,omitempty"`
}
