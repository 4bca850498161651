package model

import "time"

// Team member roles. Only responders and team admins are eligible
// on-call targets.
const (
	RoleObserver  = "observer"
	RoleResponder = "responder"
	RoleTeamAdmin = "team_admin"
)

type Team struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	ChatChannel *string   `json:"chat_channel,omitempty" db:"chat_channel"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type TeamMember struct {
	TeamID   string    `json:"team_id" db:"team_id"`
	UserID   string    `json:"user_id" db:"user_id"`
	Role     string    `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

// EligibleOnCall reports whether the member can be paged.
func (m TeamMember) EligibleOnCall() bool {
	return m.Role == RoleResponder || m.Role == RoleTeamAdmin
}

// TechnicalTag routes alerts carrying a service name in metadata to a
// team when no routing key or default service applies.
type TechnicalTag struct {
	Name   string `json:"name" db:"name"`
	TeamID string `json:"team_id" db:"team_id"`
}
