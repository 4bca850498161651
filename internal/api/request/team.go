package request

type CreateTeam struct {
	Name        string  `json:"name" validate:"required,max=120"`
	ChatChannel *string `json:"chat_channel,omitempty"`
}

type AddTeamMember struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=observer responder team_admin"`
}

type SetTechnicalTag struct {
	Name string `json:"name" validate:"required,max=120"`
}
