package model

import (
	"encoding/json"
	"time"
)

// Alert severities, normalized from provider-specific vocabularies.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Alert statuses.
const (
	AlertOpen     = "open"
	AlertResolved = "resolved"
)

// Alert is one event from a monitoring source. Immutable after
// creation except Status (auto-resolve) and IncidentID (set once by
// the deduplicator).
type Alert struct {
	ID            string          `json:"id" db:"id"`
	IntegrationID string          `json:"integration_id" db:"integration_id"`
	Title         string          `json:"title" db:"title"`
	Severity      string          `json:"severity" db:"severity"`
	Status        string          `json:"status" db:"status"`
	Fingerprint   string          `json:"fingerprint" db:"fingerprint"`
	Metadata      json.RawMessage `json:"metadata" db:"metadata"`
	ExternalID    *string         `json:"external_id,omitempty" db:"external_id"`
	ReceivedAt    time.Time       `json:"received_at" db:"received_at"`
	IncidentID    *string         `json:"incident_id,omitempty" db:"incident_id"`
}

// WebhookDelivery is an append-only record of one inbound webhook
// request, written regardless of outcome.
type WebhookDelivery struct {
	ID            string    `json:"id" db:"id"`
	IntegrationID *string   `json:"integration_id,omitempty" db:"integration_id"`
	StatusCode    int       `json:"status_code" db:"status_code"`
	LatencyMs     int       `json:"latency_ms" db:"latency_ms"`
	BodyBytes     int       `json:"body_bytes" db:"body_bytes"`
	Error         *string   `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
