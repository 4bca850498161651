package request

type CreatePolicyLevel struct {
	LevelNumber    int     `json:"level_number" validate:"required,min=1"`
	TargetType     string  `json:"target_type" validate:"required,oneof=user schedule entire_team"`
	TargetID       *string `json:"target_id,omitempty"`
	TimeoutMinutes int     `json:"timeout_minutes" validate:"required,min=1,max=180"`
}

type CreatePolicy struct {
	TeamID      string              `json:"team_id" validate:"required"`
	Name        string              `json:"name" validate:"required,max=120"`
	RepeatCount int                 `json:"repeat_count" validate:"min=0,max=10"`
	Levels      []CreatePolicyLevel `json:"levels" validate:"required,min=1,dive"`
}
