package request

type CreateService struct {
	TeamID             string  `json:"team_id" validate:"required"`
	Name               string  `json:"name" validate:"required,max=120"`
	RoutingKey         string  `json:"routing_key,omitempty"`
	EscalationPolicyID *string `json:"escalation_policy_id,omitempty"`
}

type SetServiceStatus struct {
	Status string `json:"status" validate:"required,oneof=active deprecated archived"`
}
