package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Task queues. Pipeline work, notification delivery and flow execution
// are isolated so a burst in one cannot starve the others.
const (
	TaskQueuePipeline      = "pipeline"
	TaskQueueNotifications = "notifications"
	TaskQueueFlows         = "flows"
)

// Signals accepted by the escalation workflow.
const (
	SignalAcknowledged = "acknowledged"
	SignalResolved     = "resolved"
)

// SignalCancel stops a flow execution between nodes.
const SignalCancel = "cancel"

// EscalationWorkflowID returns the deterministic workflow id for an
// incident's escalation. At most one escalation runs per incident.
func EscalationWorkflowID(incidentID string) string {
	return "escalation-" + incidentID
}

// dbActivityCtx configures options for quick database activities.
func dbActivityCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    1 * time.Second,
			MaximumInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
}

// sendActivityCtx configures options for provider-facing sends: three
// attempts, 5s initial backoff, doubling.
func sendActivityCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
}
