package model

import (
	"encoding/json"
	"time"
)

// Incident statuses.
const (
	IncidentOpen         = "open"
	IncidentAcknowledged = "acknowledged"
	IncidentResolved     = "resolved"
	IncidentClosed       = "closed"
)

// Incident is the merged representation of one or more alerts sharing
// a fingerprint. Exactly one open-or-acknowledged incident exists per
// fingerprint within the merge window.
type Incident struct {
	ID                 string     `json:"id" db:"id"`
	Fingerprint        string     `json:"fingerprint" db:"fingerprint"`
	Status             string     `json:"status" db:"status"`
	Priority           string     `json:"priority" db:"priority"`
	TeamID             string     `json:"team_id" db:"team_id"`
	EscalationPolicyID string     `json:"escalation_policy_id" db:"escalation_policy_id"`
	ServiceID          *string    `json:"service_id,omitempty" db:"service_id"`
	AssignedUserID     *string    `json:"assigned_user_id,omitempty" db:"assigned_user_id"`
	Title              string     `json:"title" db:"title"`
	CurrentLevel       int        `json:"current_level" db:"current_level"`
	CurrentRepeat      int        `json:"current_repeat" db:"current_repeat"`
	AlertCount         int        `json:"alert_count" db:"alert_count"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	AcknowledgedAt     *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// IncidentEvent is one append-only timeline entry for an incident.
type IncidentEvent struct {
	ID         string          `json:"id" db:"id"`
	IncidentID string          `json:"incident_id" db:"incident_id"`
	Actor      string          `json:"actor" db:"actor"`
	Action     string          `json:"action" db:"action"`
	Detail     string          `json:"detail" db:"detail"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Lifecycle event types consumed by the workflow matcher.
const (
	EventIncidentCreated      = "incident.created"
	EventIncidentStateChanged = "incident.state_changed"
	EventIncidentNoteAdded    = "incident.note_added"
	EventEscalationExhausted  = "incident.escalation_exhausted"
)
