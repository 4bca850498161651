package model

import "time"

// Service statuses. Only non-archived services are routable.
const (
	ServiceActive     = "active"
	ServiceDeprecated = "deprecated"
	ServiceArchived   = "archived"
)

// Service is an optional routing target owned by a team, addressed by
// its unique routing key.
type Service struct {
	ID                 string    `json:"id" db:"id"`
	TeamID             string    `json:"team_id" db:"team_id"`
	Name               string    `json:"name" db:"name"`
	RoutingKey         string    `json:"routing_key" db:"routing_key"`
	EscalationPolicyID *string   `json:"escalation_policy_id,omitempty" db:"escalation_policy_id"`
	Status             string    `json:"status" db:"status"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Routable reports whether alerts may be routed via this service.
func (s *Service) Routable() bool {
	return s.Status != ServiceArchived
}
