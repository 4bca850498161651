package workflow

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/model"
)

// DispatchParams carries one escalation level's notification target.
type DispatchParams struct {
	IncidentID    string
	IncidentTitle string
	Priority      string
	UserID        string
	Level         int
}

// NotificationDispatchWorkflow fans one page out across the target's
// contact methods, tier by tier. All channels of a tier send in
// parallel; the dispatch falls through to the next tier when two or
// more channels fail, or when every channel of the tier fails. A tier
// with no verified contact methods is skipped.
func NotificationDispatchWorkflow(ctx workflow.Context, params DispatchParams) error {
	logger := workflow.GetLogger(ctx)
	dbCtx := dbActivityCtx(ctx)
	sendCtx := sendActivityCtx(ctx)

	for tier := model.TierPrimary; tier != ""; tier = model.NextTier(tier) {
		var targets []activity.ContactTarget
		err := workflow.ExecuteActivity(dbCtx, "ListContactTargets", activity.ListContactTargetsParams{
			UserID:   params.UserID,
			Channels: model.TierChannels[tier],
		}).Get(ctx, &targets)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			recordEvent(dbCtx, params.IncidentID, "tier_skipped",
				fmt.Sprintf("user %s has no verified %s-tier contact methods", params.UserID, tier))
			continue
		}

		type pendingSend struct {
			id      string
			channel string
			future  workflow.Future
		}
		sends := make([]pendingSend, 0, len(targets))
		for _, t := range targets {
			var notificationID string
			err := workflow.ExecuteActivity(dbCtx, "CreateNotificationLog", activity.CreateNotificationLogParams{
				IncidentID: params.IncidentID,
				UserID:     params.UserID,
				Channel:    t.Channel,
				Level:      params.Level,
				Tier:       tier,
			}).Get(ctx, &notificationID)
			if err != nil {
				return err
			}

			f := workflow.ExecuteActivity(sendCtx, "SendNotification", activity.SendNotificationParams{
				NotificationID: notificationID,
				IncidentID:     params.IncidentID,
				IncidentTitle:  params.IncidentTitle,
				Priority:       params.Priority,
				Level:          params.Level,
				Channel:        t.Channel,
				Address:        t.Address,
				UserName:       t.UserName,
			})
			sends = append(sends, pendingSend{id: notificationID, channel: t.Channel, future: f})
		}

		failed := 0
		for _, s := range sends {
			if err := s.future.Get(ctx, nil); err != nil {
				logger.Warn("notification channel failed",
					"incident_id", params.IncidentID, "channel", s.channel, "error", err)
				failed++
				// Retries for this channel are spent; close out the log.
				// Best effort, the send error is what matters here.
				ferr := workflow.ExecuteActivity(dbCtx, "FailNotification", activity.FailNotificationParams{
					NotificationID: s.id,
					Channel:        s.channel,
					Error:          err.Error(),
				}).Get(ctx, nil)
				if ferr != nil {
					logger.Warn("failed to mark notification failed",
						"notification_id", s.id, "error", ferr)
				}
			}
		}

		if failed < 2 && failed < len(sends) {
			return nil
		}
		recordEvent(dbCtx, params.IncidentID, "tier_escalated",
			fmt.Sprintf("%d of %d %s-tier channels failed for user %s",
				failed, len(sends), tier, params.UserID))
	}

	recordEvent(dbCtx, params.IncidentID, "notification_exhausted",
		fmt.Sprintf("all notification tiers failed for user %s", params.UserID))
	return nil
}
