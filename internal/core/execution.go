package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagebell/pagebell/internal/flow"
	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

const executionColumns = `id, workflow_id, workflow_version, definition_snapshot, incident_id,
	triggered_by, trigger_event, execution_chain, status, started_at, completed_at, failed_at,
	error, completed_nodes, created_at`

// ExecutionService persists workflow runs. Each run carries its own
// definition snapshot taken at schedule time; the live workflow can be
// edited or rolled back mid-flight without touching it.
type ExecutionService struct {
	db DB
}

func NewExecutionService(db DB) *ExecutionService {
	return &ExecutionService{db: db}
}

// Create records a PENDING run with the workflow's current definition
// frozen in.
func (s *ExecutionService) Create(ctx context.Context, w *model.Workflow, incidentID *string, triggeredBy, triggerEvent string, chain []string) (*model.WorkflowExecution, error) {
	if !flow.AllowedInChain(chain, w.ID) {
		return nil, fmt.Errorf("workflow %s rejected by chain %v: %w", w.ID, chain, ErrValidation)
	}

	exec := &model.WorkflowExecution{
		ID:                 platform.NewName("exec"),
		WorkflowID:         w.ID,
		WorkflowVersion:    w.Version,
		DefinitionSnapshot: w.Definition,
		IncidentID:         incidentID,
		TriggeredBy:        triggeredBy,
		TriggerEvent:       triggerEvent,
		ExecutionChain:     append(append([]string{}, chain...), w.ID),
		Status:             model.ExecutionPending,
		CreatedAt:          time.Now(),
	}

	nodes, _ := json.Marshal([]model.CompletedNode{})
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_executions (`+executionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		exec.ID, exec.WorkflowID, exec.WorkflowVersion, exec.DefinitionSnapshot, exec.IncidentID,
		exec.TriggeredBy, exec.TriggerEvent, exec.ExecutionChain, exec.Status,
		nil, nil, nil, nil, nodes, exec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", classify(err))
	}
	return exec, nil
}

func (s *ExecutionService) GetByID(ctx context.Context, id string) (*model.WorkflowExecution, error) {
	var e model.WorkflowExecution
	var nodes []byte
	err := s.db.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id,
	).Scan(&e.ID, &e.WorkflowID, &e.WorkflowVersion, &e.DefinitionSnapshot, &e.IncidentID,
		&e.TriggeredBy, &e.TriggerEvent, &e.ExecutionChain, &e.Status,
		&e.StartedAt, &e.CompletedAt, &e.FailedAt, &e.Error, &nodes, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", classify(err))
	}
	if len(nodes) > 0 {
		if err := json.Unmarshal(nodes, &e.CompletedNodes); err != nil {
			return nil, fmt.Errorf("decode completed nodes: %w", err)
		}
	}
	return &e, nil
}

// MarkRunning moves pending -> running. False means another worker got
// there first or the run was cancelled while queued.
func (s *ExecutionService) MarkRunning(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx,
		`UPDATE workflow_executions SET status = $1, started_at = $2
		 WHERE id = $3 AND status = $4`,
		model.ExecutionRunning, time.Now(), id, model.ExecutionPending)
}

func (s *ExecutionService) MarkCompleted(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx,
		`UPDATE workflow_executions SET status = $1, completed_at = $2
		 WHERE id = $3 AND status = $4`,
		model.ExecutionCompleted, time.Now(), id, model.ExecutionRunning)
}

func (s *ExecutionService) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	return s.transition(ctx,
		`UPDATE workflow_executions SET status = $1, failed_at = $2, error = $3
		 WHERE id = $4 AND status IN ($5, $6)`,
		model.ExecutionFailed, time.Now(), errMsg, id,
		model.ExecutionPending, model.ExecutionRunning)
}

// MarkCancelled is honored from pending and running only; completed
// and failed runs keep their terminal status.
func (s *ExecutionService) MarkCancelled(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx,
		`UPDATE workflow_executions SET status = $1, completed_at = $2
		 WHERE id = $3 AND status IN ($4, $5)`,
		model.ExecutionCancelled, time.Now(), id,
		model.ExecutionPending, model.ExecutionRunning)
}

func (s *ExecutionService) transition(ctx context.Context, sql string, args ...any) (bool, error) {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("execution transition: %w", classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

// AppendCompletedNode adds one node outcome to the ordered trace.
func (s *ExecutionService) AppendCompletedNode(ctx context.Context, id string, node model.CompletedNode) error {
	encoded, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode node outcome: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_executions
		 SET completed_nodes = completed_nodes || $1::jsonb
		 WHERE id = $2`, encoded, id)
	if err != nil {
		return fmt.Errorf("append node outcome: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ExecutionService) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]model.WorkflowExecution, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions
		 WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", classify(err))
	}
	defer rows.Close()

	var out []model.WorkflowExecution
	for rows.Next() {
		var e model.WorkflowExecution
		var nodes []byte
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.WorkflowVersion, &e.DefinitionSnapshot, &e.IncidentID,
			&e.TriggeredBy, &e.TriggerEvent, &e.ExecutionChain, &e.Status,
			&e.StartedAt, &e.CompletedAt, &e.FailedAt, &e.Error, &nodes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if len(nodes) > 0 {
			if err := json.Unmarshal(nodes, &e.CompletedNodes); err != nil {
				return nil, fmt.Errorf("decode completed nodes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MatchWorkflows returns the enabled workflows whose trigger fires for
// the event, in creation order. The caller schedules an execution per
// match, subject to the chain guard.
func (s *ExecutionService) MatchWorkflows(ctx context.Context, workflows *WorkflowService, teamID string, ev flow.Event) ([]model.Workflow, error) {
	candidates, err := workflows.ListEnabled(ctx, teamID)
	if err != nil {
		return nil, err
	}
	var matched []model.Workflow
	for i := range candidates {
		if flow.Matches(&candidates[i].Definition, ev) {
			matched = append(matched, candidates[i])
		}
	}
	return matched, nil
}
