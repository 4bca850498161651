package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/flow"
	"github.com/pagebell/pagebell/internal/model"
)

// FlowExecutionParams identifies the execution row to run.
type FlowExecutionParams struct {
	ExecutionID string
}

// FlowExecutionWorkflow runs one workflow execution against its
// definition snapshot. The snapshot was frozen when the execution was
// created, so edits to the workflow mid-flight change nothing here.
// Nodes execute in breadth-first order from the trigger; a "cancel"
// signal is honored between nodes, never mid-action.
func FlowExecutionWorkflow(ctx workflow.Context, params FlowExecutionParams) error {
	logger := workflow.GetLogger(ctx)
	dbCtx := dbActivityCtx(ctx)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancel)

	var exec model.WorkflowExecution
	if err := workflow.ExecuteActivity(dbCtx, "GetExecution", params.ExecutionID).Get(ctx, &exec); err != nil {
		return err
	}

	var started bool
	if err := workflow.ExecuteActivity(dbCtx, "MarkExecutionRunning", params.ExecutionID).Get(ctx, &started); err != nil {
		return err
	}
	if !started {
		// Already claimed (or already terminal). Nothing to do.
		logger.Info("execution not in pending state, skipping", "execution_id", params.ExecutionID)
		return nil
	}

	def := &exec.DefinitionSnapshot
	trigger := def.Trigger()
	if trigger == nil {
		return failExecution(dbCtx, &exec, "definition snapshot has no trigger node")
	}

	var incidentID string
	if exec.IncidentID != nil {
		incidentID = *exec.IncidentID
	}
	var fctx activity.FlowContext
	err := workflow.ExecuteActivity(dbCtx, "GetFlowContext", activity.FlowContextParams{
		IncidentID: incidentID,
		WorkflowID: exec.WorkflowID,
	}).Get(ctx, &fctx)
	if err != nil {
		return failExecution(dbCtx, &exec, fmt.Sprintf("load flow context: %v", err))
	}

	queue := def.Next(trigger.ID, "")
	for len(queue) > 0 {
		if cancelCh.ReceiveAsync(nil) {
			var ok bool
			if err := workflow.ExecuteActivity(dbCtx, "MarkExecutionCancelled", params.ExecutionID).Get(ctx, &ok); err != nil {
				return err
			}
			logger.Info("execution cancelled", "execution_id", params.ExecutionID)
			return nil
		}

		nodeID := queue[0]
		queue = queue[1:]
		node := def.NodeByID(nodeID)
		if node == nil {
			return failExecution(dbCtx, &exec,
				fmt.Sprintf("snapshot references unknown node %q", nodeID))
		}

		switch node.Type {
		case flow.NodeCondition:
			branch := "false"
			if got, ok := flow.Lookup(fctx.Fields, node.Field); ok && fmt.Sprintf("%v", got) == node.Value {
				branch = "true"
			}
			appendNode(dbCtx, params.ExecutionID, model.CompletedNode{
				NodeID: nodeID,
				Status: "completed",
				Result: json.RawMessage(fmt.Sprintf(`{"branch":%q}`, branch)),
			})
			queue = append(queue, def.Next(nodeID, branch)...)

		case flow.NodeAction:
			var result json.RawMessage
			err := workflow.ExecuteActivity(actionActivityCtx(ctx, node), "ExecuteAction", activity.ExecuteActionParams{
				ExecutionID:  params.ExecutionID,
				NodeID:       nodeID,
				ActionType:   node.ActionType,
				ActionConfig: node.ActionConfig,
				Fields:       fctx.Fields,
				TimeoutSecs:  node.TimeoutSeconds,
			}).Get(ctx, &result)
			if err != nil {
				appendNode(dbCtx, params.ExecutionID, model.CompletedNode{
					NodeID: nodeID,
					Status: "failed",
					Error:  err.Error(),
				})
				if node.OnFailure == flow.OnFailureContinue {
					logger.Warn("action failed, continuing",
						"execution_id", params.ExecutionID, "node_id", nodeID, "error", err)
					queue = append(queue, def.Next(nodeID, "")...)
					continue
				}
				return failExecution(dbCtx, &exec,
					fmt.Sprintf("node %s failed: %v", nodeID, err))
			}
			appendNode(dbCtx, params.ExecutionID, model.CompletedNode{
				NodeID: nodeID,
				Status: "completed",
				Result: result,
			})
			queue = append(queue, def.Next(nodeID, "")...)

		default:
			// Triggers never appear downstream of themselves in a valid
			// snapshot; skip defensively rather than fail the run.
			queue = append(queue, def.Next(nodeID, "")...)
		}
	}

	var ok bool
	return workflow.ExecuteActivity(dbCtx, "MarkExecutionCompleted", params.ExecutionID).Get(ctx, &ok)
}

// actionActivityCtx derives per-node activity options from the node's
// retry and timeout configuration.
func actionActivityCtx(ctx workflow.Context, node *flow.Node) workflow.Context {
	attempts := int32(1)
	backoff := 5 * time.Second
	if node.Retry != nil {
		if node.Retry.Attempts > 0 {
			attempts = int32(node.Retry.Attempts)
		}
		if node.Retry.BackoffSeconds > 0 {
			backoff = time.Duration(node.Retry.BackoffSeconds) * time.Second
		}
	}
	timeout := 45 * time.Second
	if node.TimeoutSeconds > 0 {
		// Leave headroom over the in-activity HTTP timeout.
		timeout = time.Duration(node.TimeoutSeconds)*time.Second + 15*time.Second
	}
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    attempts,
			InitialInterval:    backoff,
			BackoffCoefficient: 2.0,
		},
	})
}

// failExecution marks the execution failed and pages the workflow's
// owners about it. The workflow itself completes; the failure lives on
// the execution row.
func failExecution(ctx workflow.Context, exec *model.WorkflowExecution, message string) error {
	var ok bool
	err := workflow.ExecuteActivity(ctx, "MarkExecutionFailed", activity.MarkExecutionFailedParams{
		ExecutionID: exec.ID,
		Error:       message,
	}).Get(ctx, &ok)
	if err != nil {
		return err
	}
	if !ok {
		// Another run already closed out the row and notified.
		return nil
	}
	notifyErr := workflow.ExecuteActivity(ctx, "NotifyExecutionFailed", activity.NotifyExecutionFailedParams{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Error:       message,
	}).Get(ctx, nil)
	if notifyErr != nil {
		workflow.GetLogger(ctx).Warn("failed to notify workflow owners of execution failure",
			"execution_id", exec.ID, "error", notifyErr)
	}
	return nil
}

// appendNode records one node outcome on the execution trace, best effort.
func appendNode(ctx workflow.Context, executionID string, node model.CompletedNode) {
	err := workflow.ExecuteActivity(ctx, "AppendCompletedNode", activity.AppendCompletedNodeParams{
		ExecutionID: executionID,
		Node:        node,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("failed to record node outcome",
			"execution_id", executionID, "node_id", node.NodeID, "error", err)
	}
}
