package model

import "time"

// Integration providers with payload adapters.
const (
	ProviderDatadog    = "datadog"
	ProviderGrafana    = "grafana"
	ProviderPrometheus = "prometheus"
	ProviderGeneric    = "generic"
)

// Integration is one inbound alert source with its webhook signature
// configuration and deduplication window.
type Integration struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Provider           string    `json:"provider" db:"provider"`
	Secret             string    `json:"-" db:"secret"`
	SignatureHeader    string    `json:"signature_header" db:"signature_header"`
	SignatureAlgorithm string    `json:"signature_algorithm" db:"signature_algorithm"` // sha256 | sha1
	SignatureFormat    string    `json:"signature_format" db:"signature_format"`       // hex | base64
	DefaultServiceID   *string   `json:"default_service_id,omitempty" db:"default_service_id"`
	DedupWindowMinutes int       `json:"dedup_window_minutes" db:"dedup_window_minutes"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// DedupWindow returns the integration's merge window clamped to the
// allowed range.
func (i *Integration) DedupWindow() time.Duration {
	m := i.DedupWindowMinutes
	if m < 1 {
		m = 15
	}
	if m > 120 {
		m = 120
	}
	return time.Duration(m) * time.Minute
}
