package workflow

import (
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/workflow"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
)

// ProcessAlertParams carries the alert id through the ingestion pipeline.
type ProcessAlertParams struct {
	AlertID string
}

// ProcessAlertWorkflow runs once per accepted alert: deduplicate into
// an incident, and for a brand-new incident start the escalation and
// offer the creation event to the workflow matcher. Duplicates merge
// into the existing incident and stop here; the incident's escalation
// is already running.
func ProcessAlertWorkflow(ctx workflow.Context, params ProcessAlertParams) error {
	logger := workflow.GetLogger(ctx)
	ctx = dbActivityCtx(ctx)

	var res core.DedupeResult
	err := workflow.ExecuteActivity(ctx, "DeduplicateAlert", params.AlertID).Get(ctx, &res)
	if err != nil {
		return err
	}
	if res.IsDuplicate {
		logger.Info("alert merged into existing incident",
			"alert_id", params.AlertID, "incident_id", res.IncidentID)
		return nil
	}

	// Escalation outlives the pipeline run; the deterministic id makes
	// it addressable by ack/resolve signals and guarantees at most one
	// per incident.
	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:        EscalationWorkflowID(res.IncidentID),
		TaskQueue:         TaskQueuePipeline,
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
	})
	child := workflow.ExecuteChildWorkflow(childCtx, IncidentEscalationWorkflow,
		EscalationParams{IncidentID: res.IncidentID})
	if err := child.GetChildWorkflowExecution().Get(ctx, nil); err != nil {
		return err
	}

	return scheduleMatchedWorkflows(ctx, activity.MatchWorkflowsParams{
		IncidentID: res.IncidentID,
		EventType:  model.EventIncidentCreated,
	})
}

// scheduleMatchedWorkflows asks the matcher for triggered workflows and
// starts a detached execution child per match on the flows queue.
func scheduleMatchedWorkflows(ctx workflow.Context, params activity.MatchWorkflowsParams) error {
	logger := workflow.GetLogger(ctx)

	var matched []activity.MatchedExecution
	err := workflow.ExecuteActivity(ctx, "MatchAndScheduleWorkflows", params).Get(ctx, &matched)
	if err != nil {
		return err
	}

	for _, m := range matched {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID:        "flow-" + m.ExecutionID,
			TaskQueue:         TaskQueueFlows,
			ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
		})
		child := workflow.ExecuteChildWorkflow(childCtx, FlowExecutionWorkflow,
			FlowExecutionParams{ExecutionID: m.ExecutionID})
		if err := child.GetChildWorkflowExecution().Get(ctx, nil); err != nil {
			logger.Error("failed to start flow execution",
				"execution_id", m.ExecutionID, "workflow_id", m.WorkflowID, "error", err)
			continue
		}
	}
	return nil
}
