package model

import "time"

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelVoice = "voice"
	ChannelChat  = "chat"
	ChannelPush  = "push"
)

// Notification tiers, delivered together and falling through to the
// next tier on failure.
const (
	TierPrimary   = "primary"
	TierSecondary = "secondary"
	TierTertiary  = "tertiary"
)

// TierChannels maps each tier to its channel set.
var TierChannels = map[string][]string{
	TierPrimary:   {ChannelEmail, ChannelChat, ChannelPush},
	TierSecondary: {ChannelSMS},
	TierTertiary:  {ChannelVoice},
}

// NextTier returns the tier to fall through to, or "" if terminal.
func NextTier(tier string) string {
	switch tier {
	case TierPrimary:
		return TierSecondary
	case TierSecondary:
		return TierTertiary
	default:
		return ""
	}
}

// NotificationLog statuses. Transitions are monotonic along
// queued → sending → sent → delivered, with failed terminal from any
// prior state.
const (
	NotificationQueued    = "queued"
	NotificationSending   = "sending"
	NotificationSent      = "sent"
	NotificationDelivered = "delivered"
	NotificationFailed    = "failed"
)

type NotificationLog struct {
	ID              string     `json:"id" db:"id"`
	IncidentID      string     `json:"incident_id" db:"incident_id"`
	UserID          string     `json:"user_id" db:"user_id"`
	Channel         string     `json:"channel" db:"channel"`
	EscalationLevel int        `json:"escalation_level" db:"escalation_level"`
	Tier            string     `json:"tier" db:"tier"`
	Status          string     `json:"status" db:"status"`
	ProviderID      *string    `json:"provider_id,omitempty" db:"provider_id"`
	Error           *string    `json:"error,omitempty" db:"error"`
	QueuedAt        time.Time  `json:"queued_at" db:"queued_at"`
	SendingAt       *time.Time `json:"sending_at,omitempty" db:"sending_at"`
	SentAt          *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	FailedAt        *time.Time `json:"failed_at,omitempty" db:"failed_at"`
}
