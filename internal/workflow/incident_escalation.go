package workflow

import (
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/workflow"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/model"
)

// EscalationParams identifies the incident being escalated.
type EscalationParams struct {
	IncidentID string
}

// IncidentEscalationWorkflow walks an incident up its escalation policy
// until somebody acknowledges or resolves it, or the policy is
// exhausted. Each level notifies its resolved target, then waits the
// level's timeout for an "acknowledged" or "resolved" signal. The
// cursor advance is guarded in the database, so a timer that fires
// after a concurrent ack simply stops instead of paging the next level.
func IncidentEscalationWorkflow(ctx workflow.Context, params EscalationParams) error {
	logger := workflow.GetLogger(ctx)
	dbCtx := dbActivityCtx(ctx)

	var done bool
	ackCh := workflow.GetSignalChannel(ctx, SignalAcknowledged)
	resCh := workflow.GetSignalChannel(ctx, SignalResolved)
	workflow.Go(ctx, func(ctx workflow.Context) {
		sel := workflow.NewSelector(ctx)
		sel.AddReceive(ackCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, nil)
			done = true
		})
		sel.AddReceive(resCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, nil)
			done = true
		})
		sel.Select(ctx)
	})

	var inc model.Incident
	if err := workflow.ExecuteActivity(dbCtx, "GetIncident", params.IncidentID).Get(ctx, &inc); err != nil {
		return err
	}
	if inc.Status != model.IncidentOpen {
		return nil
	}

	var policy model.EscalationPolicy
	if err := workflow.ExecuteActivity(dbCtx, "GetEscalationPolicy", inc.EscalationPolicyID).Get(ctx, &policy); err != nil {
		return err
	}
	maxLevel := policy.MaxLevel()
	if maxLevel == 0 {
		recordEvent(dbCtx, params.IncidentID, "escalation_failed",
			fmt.Sprintf("policy %s has no levels", policy.ID))
		return nil
	}

	// Resume from the stored cursor: a worker restart or workflow reset
	// picks up where the incident row says it is.
	level, repeat := inc.CurrentLevel, inc.CurrentRepeat

	for {
		lvl := policy.Level(level)
		if lvl == nil {
			recordEvent(dbCtx, params.IncidentID, "escalation_failed",
				fmt.Sprintf("policy %s has no level %d", policy.ID, level))
			return nil
		}

		var userID string
		err := workflow.ExecuteActivity(dbCtx, "ResolveLevelTarget", activity.ResolveLevelTargetParams{
			PolicyID:    policy.ID,
			LevelNumber: level,
			TeamID:      inc.TeamID,
			At:          workflow.Now(ctx).UTC(),
		}).Get(ctx, &userID)
		if err != nil {
			return err
		}

		if userID == "" {
			recordEvent(dbCtx, params.IncidentID, "level_skipped",
				fmt.Sprintf("level %d repeat %d: nobody on call", level, repeat))
		} else {
			dispatchLevel(ctx, &inc, userID, level, repeat)
		}

		timeout := time.Duration(lvl.TimeoutMinutes) * time.Minute
		acked, err := workflow.AwaitWithTimeout(ctx, timeout, func() bool { return done })
		if err != nil {
			return err
		}
		if acked {
			logger.Info("escalation stopped by signal", "incident_id", params.IncidentID, "level", level)
			return nil
		}

		nextLevel, nextRepeat := level+1, repeat
		if nextLevel > maxLevel {
			if repeat >= policy.RepeatCount {
				recordEvent(dbCtx, params.IncidentID, "escalation_exhausted",
					fmt.Sprintf("policy %s exhausted after %d repeats of %d levels",
						policy.ID, policy.RepeatCount, maxLevel))
				return scheduleMatchedWorkflows(dbCtx, activity.MatchWorkflowsParams{
					IncidentID: params.IncidentID,
					EventType:  model.EventEscalationExhausted,
				})
			}
			nextLevel, nextRepeat = 1, repeat+1
		}

		var advanced bool
		err = workflow.ExecuteActivity(dbCtx, "AdvanceEscalation", activity.AdvanceEscalationParams{
			IncidentID: params.IncidentID,
			FromLevel:  level,
			FromRepeat: repeat,
			ToLevel:    nextLevel,
			ToRepeat:   nextRepeat,
		}).Get(ctx, &advanced)
		if err != nil {
			return err
		}
		if !advanced {
			// The incident moved under us (ack, resolve, or a competing
			// advance). This timer is stale.
			logger.Info("escalation advance lost the guard", "incident_id", params.IncidentID, "level", level)
			return nil
		}
		level, repeat = nextLevel, nextRepeat
	}
}

// dispatchLevel starts the notification fan-out for one level as a
// detached child. Delivery (including tier fall-through) can outlast
// the level timeout, so the escalation never waits on it.
func dispatchLevel(ctx workflow.Context, inc *model.Incident, userID string, level, repeat int) {
	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:        fmt.Sprintf("dispatch-%s-l%d-r%d", inc.ID, level, repeat),
		TaskQueue:         TaskQueueNotifications,
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
	})
	child := workflow.ExecuteChildWorkflow(childCtx, NotificationDispatchWorkflow, DispatchParams{
		IncidentID:    inc.ID,
		IncidentTitle: inc.Title,
		Priority:      inc.Priority,
		UserID:        userID,
		Level:         level,
	})
	if err := child.GetChildWorkflowExecution().Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("failed to start notification dispatch",
			"incident_id", inc.ID, "level", level, "error", err)
	}
}

// recordEvent appends a system timeline entry, best effort.
func recordEvent(ctx workflow.Context, incidentID, action, detail string) {
	err := workflow.ExecuteActivity(ctx, "RecordIncidentEvent", activity.RecordIncidentEventParams{
		IncidentID: incidentID,
		Actor:      "system",
		Action:     action,
		Detail:     detail,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("failed to record incident event",
			"incident_id", incidentID, "action", action, "error", err)
	}
}
