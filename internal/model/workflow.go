package model

import (
	"encoding/json"
	"time"

	"github.com/pagebell/pagebell/internal/flow"
)

// Workflow scope types.
const (
	ScopeTeam   = "team"
	ScopeGlobal = "global"
)

// Triggered-by values for executions.
const (
	TriggeredByEvent  = "event"
	TriggeredByManual = "manual"
)

// Workflow execution statuses.
const (
	ExecutionPending   = "pending"
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
	ExecutionCancelled = "cancelled"
)

// Workflow is a versioned, event-triggered automation. The live
// definition is only a template; executions always run against their
// own immutable snapshot.
type Workflow struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	ScopeType   string          `json:"scope_type" db:"scope_type"`
	TeamID      *string         `json:"team_id,omitempty" db:"team_id"`
	IsEnabled   bool            `json:"is_enabled" db:"is_enabled"`
	Version     int             `json:"version" db:"version"`
	Definition  flow.Definition `json:"definition" db:"definition"`
	CreatedBy   *string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// WorkflowVersion is an append-only immutable snapshot. A rollback to
// version K creates version N+1 with K's definition; older versions
// are never mutated.
type WorkflowVersion struct {
	ID         string          `json:"id" db:"id"`
	WorkflowID string          `json:"workflow_id" db:"workflow_id"`
	Version    int             `json:"version" db:"version"`
	Definition flow.Definition `json:"definition" db:"definition"`
	ChangeNote string          `json:"change_note" db:"change_note"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// CompletedNode records the outcome of one executed node, in order.
type CompletedNode struct {
	NodeID string          `json:"node_id"`
	Status string          `json:"status"` // completed | failed | skipped
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// WorkflowExecution is one run of a workflow against its definition
// snapshot. Mid-flight edits to the workflow never alter it.
type WorkflowExecution struct {
	ID                 string          `json:"id" db:"id"`
	WorkflowID         string          `json:"workflow_id" db:"workflow_id"`
	WorkflowVersion    int             `json:"workflow_version" db:"workflow_version"`
	DefinitionSnapshot flow.Definition `json:"definition_snapshot" db:"definition_snapshot"`
	IncidentID         *string         `json:"incident_id,omitempty" db:"incident_id"`
	TriggeredBy        string          `json:"triggered_by" db:"triggered_by"`
	TriggerEvent       string          `json:"trigger_event" db:"trigger_event"`
	ExecutionChain     []string        `json:"execution_chain" db:"execution_chain"`
	Status             string          `json:"status" db:"status"`
	StartedAt          *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt           *time.Time      `json:"failed_at,omitempty" db:"failed_at"`
	Error              *string         `json:"error,omitempty" db:"error"`
	CompletedNodes     []CompletedNode `json:"completed_nodes" db:"completed_nodes"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}
