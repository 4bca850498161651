package ingest

import (
	"encoding/json"
	"fmt"
	"time"
)

// datadogAdapter normalizes DataDog monitor webhooks:
// {"alert_id": "...", "title": "...", "severity": "P1", "date": 1710000000,
//  "tags": {"service": "..."}, ...}
type datadogAdapter struct{}

func (datadogAdapter) Normalize(raw []byte) (*NormalizedAlert, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"body": "invalid JSON"}}
	}

	fields := map[string]string{}
	out := &NormalizedAlert{Extra: m}

	out.Title = strField(m, "title", "alert_title")
	if out.Title == "" {
		fields["title"] = "required"
	}

	sev, ok := normalizeSeverity(strField(m, "severity", "priority", "alert_type"))
	if !ok {
		fields["severity"] = "unknown severity value"
	}
	out.Severity = sev

	if ts, ok := parseTimestamp(m["date"]); ok {
		out.Timestamp = ts
	} else if ts, ok := parseTimestamp(m["timestamp"]); ok {
		out.Timestamp = ts
	} else {
		out.Timestamp = time.Now().UTC()
	}

	out.ExternalID = strField(m, "alert_id", "id")
	out.RoutingKey = strField(m, "routing_key", "routingKey")
	if tags, ok := m["tags"].(map[string]any); ok {
		out.ServiceName = strField(tags, "service", "service_name")
	}
	if out.ServiceName == "" {
		out.ServiceName = strField(m, "service", "service_name")
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return out, nil
}

// grafanaAdapter normalizes Grafana alerting webhooks:
// {"ruleId": ..., "title": ..., "state": "alerting", "severity": ...,
//  "evalMatches": [...], ...}
type grafanaAdapter struct{}

func (grafanaAdapter) Normalize(raw []byte) (*NormalizedAlert, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"body": "invalid JSON"}}
	}

	fields := map[string]string{}
	out := &NormalizedAlert{Extra: m}

	out.Title = strField(m, "title", "ruleName")
	if out.Title == "" {
		fields["title"] = "required"
	}

	rawSev := strField(m, "severity")
	if rawSev == "" {
		// Grafana legacy alerts carry state instead of severity.
		if strField(m, "state") == "alerting" {
			rawSev = "high"
		} else {
			rawSev = "info"
		}
	}
	sev, ok := normalizeSeverity(rawSev)
	if !ok {
		fields["severity"] = "unknown severity value"
	}
	out.Severity = sev

	if ts, ok := parseTimestamp(m["startsAt"]); ok {
		out.Timestamp = ts
	} else {
		out.Timestamp = time.Now().UTC()
	}

	if id, ok := m["ruleId"].(float64); ok {
		out.ExternalID = fmt.Sprintf("rule-%d", int64(id))
	}
	out.RoutingKey = strField(m, "routing_key", "routingKey")
	out.ServiceName = strField(m, "service", "service_name")

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return out, nil
}

// prometheusAdapter normalizes Alertmanager webhooks, taking the first
// firing alert of the group.
type prometheusAdapter struct{}

func (prometheusAdapter) Normalize(raw []byte) (*NormalizedAlert, error) {
	var payload struct {
		GroupKey string `json:"groupKey"`
		Status   string `json:"status"`
		Alerts   []struct {
			Labels      map[string]string `json:"labels"`
			Annotations map[string]string `json:"annotations"`
			StartsAt    string            `json:"startsAt"`
			Fingerprint string            `json:"fingerprint"`
		} `json:"alerts"`
		CommonLabels map[string]string `json:"commonLabels"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"body": "invalid JSON"}}
	}
	if len(payload.Alerts) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"alerts": "at least one alert required"}}
	}

	a := payload.Alerts[0]
	fields := map[string]string{}

	title := a.Annotations["summary"]
	if title == "" {
		title = a.Labels["alertname"]
	}
	if title == "" {
		fields["title"] = "summary annotation or alertname label required"
	}

	sev, ok := normalizeSeverity(a.Labels["severity"])
	if !ok {
		fields["severity"] = "unknown severity label"
	}

	ts, ok := parseTimestamp(a.StartsAt)
	if !ok {
		ts = time.Now().UTC()
	}

	extra := make(map[string]any, len(a.Labels)+len(a.Annotations))
	for k, v := range a.Labels {
		extra[k] = v
	}
	for k, v := range a.Annotations {
		extra[k] = v
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return &NormalizedAlert{
		Title:       title,
		Severity:    sev,
		Timestamp:   ts,
		ExternalID:  a.Fingerprint,
		RoutingKey:  a.Labels["routing_key"],
		ServiceName: a.Labels["service"],
		Extra:       extra,
	}, nil
}

// genericAdapter accepts the documented PageBell payload directly.
type genericAdapter struct{}

func (genericAdapter) Normalize(raw []byte) (*NormalizedAlert, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"body": "invalid JSON"}}
	}

	fields := map[string]string{}
	out := &NormalizedAlert{Extra: m}

	out.Title = strField(m, "title")
	if out.Title == "" {
		fields["title"] = "required"
	}

	sev, ok := normalizeSeverity(strField(m, "severity"))
	if !ok {
		fields["severity"] = "required, one of critical|high|medium|low|info or a known alias"
	}
	out.Severity = sev

	if ts, ok := parseTimestamp(m["timestamp"]); ok {
		out.Timestamp = ts
	} else {
		out.Timestamp = time.Now().UTC()
	}

	out.ExternalID = strField(m, "external_id", "externalId")
	out.RoutingKey = strField(m, "routing_key", "routingKey")
	out.ServiceName = strField(m, "service", "service_name")

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return out, nil
}
