// Package notify delivers incident notifications through channel
// provider pools with circuit-breaker failover.
package notify

import "fmt"

// maxSMSUnits is the single-segment SMS budget in UTF-16 code units.
const maxSMSUnits = 160

// Payload is one notification to one recipient endpoint.
type Payload struct {
	NotificationID string `json:"notification_id"`
	IncidentID     string `json:"incident_id"`
	IncidentTitle  string `json:"incident_title"`
	Priority       string `json:"priority"`
	Level          int    `json:"level"`
	Channel        string `json:"channel"`
	Address        string `json:"address"`
	UserName       string `json:"user_name"`
	DashboardURL   string `json:"dashboard_url"`
}

// Subject is the email subject / push title line.
func (p *Payload) Subject() string {
	return fmt.Sprintf("[%s] #%s %s", p.Priority, p.IncidentID, p.IncidentTitle)
}

// Body is the long-form message for email, chat and push.
func (p *Payload) Body() string {
	return fmt.Sprintf("Incident %s (%s, level %d)\n%s\n\nAcknowledge: %s/incidents/%s",
		p.IncidentID, p.Priority, p.Level, p.IncidentTitle, p.DashboardURL, p.IncidentID)
}

// SMSBody renders the compact SMS form, truncated to a single segment.
// Truncation counts UTF-16 code units, matching how carriers measure
// UCS-2 segments.
func (p *Payload) SMSBody() string {
	msg := fmt.Sprintf("%s #%s: %s Reply ACK to acknowledge.", p.Priority, p.IncidentID, p.IncidentTitle)
	return truncateUTF16(msg, maxSMSUnits)
}

// VoiceScript is the text-to-speech script for voice calls.
func (p *Payload) VoiceScript() string {
	return fmt.Sprintf("This is PageBell. You have a %s incident: %s. Press 4 to acknowledge.",
		p.Priority, p.IncidentTitle)
}

func truncateUTF16(s string, units int) string {
	used := 0
	for i, r := range s {
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if used+need > units {
			return s[:i]
		}
		used += need
	}
	return s
}
