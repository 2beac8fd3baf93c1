package entity

// OutcomeReason is recorded on a RawEvent once the pipeline marks it processed.
type OutcomeReason string

const (
	ReasonCreated            OutcomeReason = "created"
	ReasonUpdated            OutcomeReason = "updated"
	ReasonDuplicate          OutcomeReason = "duplicate"
	ReasonNotLeadWorthy      OutcomeReason = "not_lead_worthy"
	ReasonNoEmail            OutcomeReason = "no_email"
	ReasonNoIdentifiableInfo OutcomeReason = "no_identifiable_info"
	ReasonAlreadyProcessed   OutcomeReason = "already_processed"
)
