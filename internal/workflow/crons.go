package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/pagebell/pagebell/internal/activity"
)

// AutoResolveParams configures the stale-alert sweep.
type AutoResolveParams struct {
	CutoffHours int
}

// AutoResolveWorkflow runs on a cron schedule and resolves OPEN alerts
// that have aged past the cutoff without being attached to activity.
func AutoResolveWorkflow(ctx workflow.Context, params AutoResolveParams) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	})

	var resolved int
	err := workflow.ExecuteActivity(ctx, "ResolveStaleAlerts", params.CutoffHours).Get(ctx, &resolved)
	if err != nil {
		return err
	}
	if resolved > 0 {
		workflow.GetLogger(ctx).Info("auto-resolved stale alerts", "count", resolved)
	}
	return nil
}

// ArchiveParams configures the notification-log retention sweep.
type ArchiveParams struct {
	RetentionDays int
}

// ArchiveNotificationsWorkflow runs on a cron schedule and moves
// expired terminal notification logs and webhook delivery audit rows
// to object storage.
func ArchiveNotificationsWorkflow(ctx workflow.Context, params ArchiveParams) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	})

	var res activity.ArchiveResult
	err := workflow.ExecuteActivity(ctx, "ArchiveNotificationLogs", params.RetentionDays).Get(ctx, &res)
	if err != nil {
		return err
	}
	if res.Archived > 0 {
		workflow.GetLogger(ctx).Info("archived notification logs",
			"count", res.Archived, "last_key", res.Key)
	}

	var dres activity.ArchiveResult
	err = workflow.ExecuteActivity(ctx, "ArchiveWebhookDeliveries", params.RetentionDays).Get(ctx, &dres)
	if err != nil {
		return err
	}
	if dres.Archived > 0 {
		workflow.GetLogger(ctx).Info("archived webhook deliveries",
			"count", dres.Archived, "last_key", dres.Key)
	}
	return nil
}
