package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/pagebell/pagebell/internal/activity"
)

// IncidentEventParams carries one lifecycle event for workflow matching.
type IncidentEventParams struct {
	IncidentID string
	EventType  string
	NewState   string
}

// IncidentEventWorkflow offers a lifecycle event (state change, note
// added) to the workflow matcher and starts executions for the matches.
// The API starts one of these after each successful transition; keeping
// the matching out of the request path means a slow action endpoint
// never delays an acknowledge.
func IncidentEventWorkflow(ctx workflow.Context, params IncidentEventParams) error {
	ctx = dbActivityCtx(ctx)
	return scheduleMatchedWorkflows(ctx, activity.MatchWorkflowsParams{
		IncidentID: params.IncidentID,
		EventType:  params.EventType,
		NewState:   params.NewState,
	})
}
