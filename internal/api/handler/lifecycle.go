package handler

import (
	"context"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/pagebell/pagebell/internal/events"
	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
	"github.com/pagebell/pagebell/internal/workflow"
)

// lifecycle fans an incident state change out to the escalation
// workflow, the workflow matcher and dashboard subscribers. Everything
// here is best-effort: the DB transition already happened.
type lifecycle struct {
	tc     temporalclient.Client
	hub    *events.Hub
	logger zerolog.Logger
}

func (l *lifecycle) signal(ctx context.Context, incidentID, signal string) {
	err := l.tc.SignalWorkflow(ctx, workflow.EscalationWorkflowID(incidentID), "", signal, nil)
	if err != nil {
		l.logger.Debug().Err(err).Str("incident_id", incidentID).Str("signal", signal).
			Msg("escalation workflow not signalled")
	}
}

func (l *lifecycle) matchEvent(ctx context.Context, incidentID, eventType, newState string) {
	_, err := l.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        "incident-event-" + incidentID + "-" + platform.NewID(),
		TaskQueue: workflow.TaskQueuePipeline,
	}, "IncidentEventWorkflow", workflow.IncidentEventParams{
		IncidentID: incidentID,
		EventType:  eventType,
		NewState:   newState,
	})
	if err != nil {
		l.logger.Error().Err(err).Str("incident_id", incidentID).Str("event", eventType).
			Msg("failed to start lifecycle event workflow")
	}
}

func (l *lifecycle) broadcast(eventType, incidentID, teamID string, payload any) {
	l.hub.Broadcast(events.Event{
		Type:       eventType,
		IncidentID: incidentID,
		TeamID:     teamID,
		Payload:    payload,
	})
}

func (l *lifecycle) acknowledged(ctx context.Context, incidentID, teamID string) {
	l.signal(ctx, incidentID, workflow.SignalAcknowledged)
	l.matchEvent(ctx, incidentID, model.EventIncidentStateChanged, model.IncidentAcknowledged)
	l.broadcast("incident.acknowledged", incidentID, teamID, nil)
}

func (l *lifecycle) resolved(ctx context.Context, incidentID, teamID string) {
	l.signal(ctx, incidentID, workflow.SignalResolved)
	l.matchEvent(ctx, incidentID, model.EventIncidentStateChanged, model.IncidentResolved)
	l.broadcast("incident.resolved", incidentID, teamID, nil)
}

func (l *lifecycle) closed(ctx context.Context, incidentID, teamID string) {
	l.matchEvent(ctx, incidentID, model.EventIncidentStateChanged, model.IncidentClosed)
	l.broadcast("incident.closed", incidentID, teamID, nil)
}

func (l *lifecycle) noteAdded(ctx context.Context, incidentID, teamID string) {
	l.matchEvent(ctx, incidentID, model.EventIncidentNoteAdded, "")
	l.broadcast("incident.note_added", incidentID, teamID, nil)
}
