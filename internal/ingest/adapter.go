// Package ingest turns signed provider webhooks into normalized
// alerts: signature verification, per-provider payload adapters,
// severity normalization and fingerprinting.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/pagebell/pagebell/internal/model"
)

// NormalizedAlert is the provider-independent result of payload
// normalization. Extra preserves unmapped payload fields for template
// interpolation.
type NormalizedAlert struct {
	Title       string
	Severity    string
	Timestamp   time.Time
	ExternalID  string
	RoutingKey  string
	ServiceName string
	Extra       map[string]any
}

// ValidationError carries a field-level report for a rejected payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Adapter normalizes one provider's webhook payload.
type Adapter interface {
	Normalize(raw []byte) (*NormalizedAlert, error)
}

// AdapterFor returns the adapter for an integration provider.
func AdapterFor(provider string) (Adapter, error) {
	switch provider {
	case model.ProviderDatadog:
		return datadogAdapter{}, nil
	case model.ProviderGrafana:
		return grafanaAdapter{}, nil
	case model.ProviderPrometheus:
		return prometheusAdapter{}, nil
	case model.ProviderGeneric:
		return genericAdapter{}, nil
	default:
		return nil, fmt.Errorf("unknown integration provider %q", provider)
	}
}

// severityAliases maps provider vocabularies onto the normalized
// scale. Lookup is case-insensitive; unknown values validate as an
// error at the adapter.
var severityAliases = map[string]string{
	"p1":        model.SeverityCritical,
	"critical":  model.SeverityCritical,
	"emergency": model.SeverityCritical,
	"disaster":  model.SeverityCritical,
	"p2":        model.SeverityHigh,
	"high":      model.SeverityHigh,
	"error":     model.SeverityHigh,
	"p3":        model.SeverityMedium,
	"medium":    model.SeverityMedium,
	"warning":   model.SeverityMedium,
	"warn":      model.SeverityMedium,
	"p4":        model.SeverityLow,
	"low":       model.SeverityLow,
	"minor":     model.SeverityLow,
	"p5":        model.SeverityInfo,
	"info":      model.SeverityInfo,
	"ok":        model.SeverityInfo,
}

func normalizeSeverity(raw string) (string, bool) {
	s, ok := severityAliases[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

// parseTimestamp accepts Unix seconds (float or int) and ISO-8601.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func strField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
