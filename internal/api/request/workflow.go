package request

import "github.com/pagebell/pagebell/internal/flow"

type CreateWorkflow struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=2000"`
	ScopeType   string          `json:"scope_type" validate:"required,oneof=team global"`
	TeamID      *string         `json:"team_id,omitempty"`
	Definition  flow.Definition `json:"definition" validate:"required"`
}

type UpdateWorkflow struct {
	Description string          `json:"description" validate:"max=2000"`
	Definition  flow.Definition `json:"definition" validate:"required"`
	ChangeNote  string          `json:"change_note" validate:"max=500"`
	// Version the caller edited; the update fails with 409 when the
	// workflow moved past it.
	Version int `json:"version" validate:"required,min=1"`
}

type RollbackWorkflow struct {
	ToVersion int `json:"to_version" validate:"required,min=1"`
}

type ExecuteWorkflow struct {
	IncidentID string `json:"incident_id,omitempty"`
}

type SetWorkflowEnabled struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type SetWorkflowSecret struct {
	Name  string `json:"name" validate:"required,max=120"`
	Value string `json:"value" validate:"required"`
}

type ImportWorkflow struct {
	ScopeType string  `json:"scope_type" validate:"required,oneof=team global"`
	TeamID    *string `json:"team_id,omitempty"`
	// Export is the payload produced by the export endpoint.
	Export map[string]any `json:"export" validate:"required"`
}
