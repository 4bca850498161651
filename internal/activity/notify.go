package activity

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/metrics"
	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/notify"
)

// Notify contains the provider-facing notification activities.
type Notify struct {
	registry     *notify.Registry
	services     *core.Services
	dashboardURL string
}

// NewNotify creates a new Notify activity struct.
func NewNotify(registry *notify.Registry, services *core.Services, dashboardURL string) *Notify {
	return &Notify{registry: registry, services: services, dashboardURL: dashboardURL}
}

// SendNotificationParams identifies the queued log row and its target.
type SendNotificationParams struct {
	NotificationID string
	IncidentID     string
	IncidentTitle  string
	Priority       string
	Level          int
	Channel        string
	Address        string
	UserName       string
}

// SendNotification walks one notification log through
// sending -> sent while delivering through the channel's provider
// pool. Transient provider errors return retryable so the activity's
// retry policy drives reattempts; only a pool with nothing left to
// attempt fails the log permanently, letting the dispatcher escalate
// the tier instead of retrying into open breakers.
func (a *Notify) SendNotification(ctx context.Context, params SendNotificationParams) (string, error) {
	ok, err := a.services.Notifications.MarkSending(ctx, params.NotificationID)
	if err != nil {
		return "", err
	}
	if !ok {
		// The log already reached a state past sending on another run.
		return "", temporal.NewNonRetryableApplicationError("notification already finished", "SUPERSEDED", nil)
	}

	payload := &notify.Payload{
		NotificationID: params.NotificationID,
		IncidentID:     params.IncidentID,
		IncidentTitle:  params.IncidentTitle,
		Priority:       params.Priority,
		Level:          params.Level,
		Channel:        params.Channel,
		Address:        params.Address,
		UserName:       params.UserName,
		DashboardURL:   a.dashboardURL,
	}

	providerID, err := a.registry.Send(ctx, payload)
	if err != nil {
		if errors.Is(err, notify.ErrAllProvidersFailed) {
			_, _ = a.services.Notifications.MarkFailed(ctx, params.NotificationID, err.Error())
			metrics.NotificationsSent.WithLabelValues(params.Channel, "failed").Inc()
			return "", temporal.NewNonRetryableApplicationError(err.Error(), "ALL_PROVIDERS_FAILED", err)
		}
		// Transient. The log stays in sending for the next attempt; the
		// dispatcher marks it failed once retries are spent.
		return "", err
	}

	if _, err := a.services.Notifications.MarkSent(ctx, params.NotificationID, providerID); err != nil {
		return providerID, err
	}
	metrics.NotificationsSent.WithLabelValues(params.Channel, "sent").Inc()
	return providerID, nil
}

// FailNotificationParams identifies a log whose send retries are spent.
type FailNotificationParams struct {
	NotificationID string
	Channel        string
	Error          string
}

// FailNotification terminally fails a log once the dispatcher has given
// up on its channel. A log already failed under ALL_PROVIDERS_FAILED no
// longer matches the conditional update, so double-marking is a no-op.
func (a *Notify) FailNotification(ctx context.Context, params FailNotificationParams) error {
	moved, err := a.services.Notifications.MarkFailed(ctx, params.NotificationID, params.Error)
	if err != nil {
		return err
	}
	if moved {
		metrics.NotificationsSent.WithLabelValues(params.Channel, "failed").Inc()
	}
	return nil
}

// NotifyExecutionFailedParams identifies the failed run.
type NotifyExecutionFailedParams struct {
	ExecutionID string
	WorkflowID  string
	Error       string
}

// NotifyExecutionFailed tells the people who own a workflow that a run
// of it failed: the owning team's chat channel and the author's email.
// Sends are best effort; the execution row carries the authoritative
// error either way.
func (a *Notify) NotifyExecutionFailed(ctx context.Context, params NotifyExecutionFailedParams) error {
	w, err := a.services.Workflows.GetByID(ctx, params.WorkflowID)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("workflow %q execution %s failed: %s", w.Name, params.ExecutionID, params.Error)

	type target struct {
		channel string
		address string
		name    string
	}
	var targets []target
	if w.TeamID != nil {
		team, err := a.services.Teams.GetByID(ctx, *w.TeamID)
		if err == nil && team.ChatChannel != nil && *team.ChatChannel != "" {
			targets = append(targets, target{channel: model.ChannelChat, address: *team.ChatChannel, name: team.Name})
		}
	}
	if w.CreatedBy != nil {
		author, err := a.services.Users.GetByID(ctx, *w.CreatedBy)
		if err == nil && author.Email != "" {
			targets = append(targets, target{channel: model.ChannelEmail, address: author.Email, name: author.Name})
		}
	}

	for _, t := range targets {
		_, err := a.registry.Send(ctx, &notify.Payload{
			NotificationID: params.ExecutionID,
			IncidentID:     params.ExecutionID,
			IncidentTitle:  title,
			Priority:       model.SeverityHigh,
			Channel:        t.channel,
			Address:        t.address,
			UserName:       t.name,
			DashboardURL:   a.dashboardURL,
		})
		if err != nil {
			metrics.NotificationsSent.WithLabelValues(t.channel, "failed").Inc()
		}
	}
	return nil
}
