package request

// AcknowledgeIncident claims an incident for a responder.
type AcknowledgeIncident struct {
	UserID string `json:"user_id" validate:"required"`
}

// AddIncidentNote appends a note to the incident timeline.
type AddIncidentNote struct {
	Detail string `json:"detail" validate:"required,max=4000"`
}
