package activity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/flow"
	"github.com/pagebell/pagebell/internal/model"
)

// CoreDB contains activities that read from and update the core database.
type CoreDB struct {
	db       core.DB
	services *core.Services
}

// NewCoreDB creates a new CoreDB activity struct.
func NewCoreDB(db core.DB, services *core.Services) *CoreDB {
	return &CoreDB{db: db, services: services}
}

// nonRetryable converts permanent domain errors into Temporal
// application errors so the pipeline does not burn retries on
// configuration problems.
func nonRetryable(err error) error {
	switch {
	case errors.Is(err, core.ErrNoTeam):
		return temporal.NewNonRetryableApplicationError(err.Error(), "NO_TEAM", err)
	case errors.Is(err, core.ErrNoPolicy):
		return temporal.NewNonRetryableApplicationError(err.Error(), "NO_POLICY", err)
	case errors.Is(err, core.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), "NOT_FOUND", err)
	case errors.Is(err, core.ErrValidation):
		return temporal.NewNonRetryableApplicationError(err.Error(), "VALIDATION", err)
	}
	return err
}

// DeduplicateAlert runs the serializable dedupe decision for an alert.
func (a *CoreDB) DeduplicateAlert(ctx context.Context, alertID string) (*core.DedupeResult, error) {
	res, err := a.services.Incidents.Deduplicate(ctx, alertID)
	if err != nil {
		return nil, nonRetryable(err)
	}
	return res, nil
}

// GetIncident loads an incident by id.
func (a *CoreDB) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	inc, err := a.services.Incidents.GetByID(ctx, id)
	if err != nil {
		return nil, nonRetryable(err)
	}
	return inc, nil
}

// GetEscalationPolicy loads a policy with its ordered levels.
func (a *CoreDB) GetEscalationPolicy(ctx context.Context, id string) (*model.EscalationPolicy, error) {
	p, err := a.services.Policies.GetByID(ctx, id)
	if err != nil {
		return nil, nonRetryable(err)
	}
	return p, nil
}

// ResolveLevelTargetParams identifies one escalation level to resolve.
type ResolveLevelTargetParams struct {
	PolicyID    string
	LevelNumber int
	TeamID      string
	At          time.Time
}

// ResolveLevelTarget resolves the level's target to a concrete user id
// at the instant, "" when nobody is pageable.
func (a *CoreDB) ResolveLevelTarget(ctx context.Context, params ResolveLevelTargetParams) (string, error) {
	policy, err := a.services.Policies.GetByID(ctx, params.PolicyID)
	if err != nil {
		return "", nonRetryable(err)
	}
	level := policy.Level(params.LevelNumber)
	if level == nil {
		return "", temporal.NewNonRetryableApplicationError("no such level", "VALIDATION", nil)
	}
	userID, err := core.ResolveLevelTarget(ctx, a.db, level, params.TeamID, params.At)
	if err != nil {
		return "", nonRetryable(err)
	}
	return userID, nil
}

// AdvanceEscalationParams moves an incident's escalation cursor.
type AdvanceEscalationParams struct {
	IncidentID string
	FromLevel  int
	FromRepeat int
	ToLevel    int
	ToRepeat   int
}

// AdvanceEscalation performs the guarded cursor move. Returns false
// when the timer was stale.
func (a *CoreDB) AdvanceEscalation(ctx context.Context, params AdvanceEscalationParams) (bool, error) {
	ok, err := a.services.Incidents.AdvanceEscalation(ctx, params.IncidentID,
		params.FromLevel, params.FromRepeat, params.ToLevel, params.ToRepeat)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// RecordIncidentEventParams appends a timeline row.
type RecordIncidentEventParams struct {
	IncidentID string
	Actor      string
	Action     string
	Detail     string
}

// RecordIncidentEvent appends to the incident timeline.
func (a *CoreDB) RecordIncidentEvent(ctx context.Context, params RecordIncidentEventParams) error {
	a.services.Incidents.RecordEvent(ctx, params.IncidentID, params.Actor, params.Action, params.Detail)
	return nil
}

// ContactTarget is one verified endpoint for a notification.
type ContactTarget struct {
	Channel  string
	Address  string
	UserName string
}

// ListContactTargetsParams selects the user's endpoints for a channel set.
type ListContactTargetsParams struct {
	UserID   string
	Channels []string
}

// ListContactTargets returns the user's verified endpoints for the
// requested channels, one target per channel (first verified wins).
func (a *CoreDB) ListContactTargets(ctx context.Context, params ListContactTargetsParams) ([]ContactTarget, error) {
	user, err := a.services.Users.GetByID(ctx, params.UserID)
	if err != nil {
		return nil, nonRetryable(err)
	}

	var targets []ContactTarget
	for _, channel := range params.Channels {
		methods, err := a.services.Users.ContactMethods(ctx, params.UserID, channel)
		if err != nil {
			return nil, err
		}
		if len(methods) == 0 {
			continue
		}
		targets = append(targets, ContactTarget{
			Channel:  channel,
			Address:  methods[0].Address,
			UserName: user.Name,
		})
	}
	return targets, nil
}

// CreateNotificationLogParams queues one delivery attempt.
type CreateNotificationLogParams struct {
	IncidentID string
	UserID     string
	Channel    string
	Level      int
	Tier       string
}

// CreateNotificationLog records a QUEUED notification and returns its id.
func (a *CoreDB) CreateNotificationLog(ctx context.Context, params CreateNotificationLogParams) (string, error) {
	log := &model.NotificationLog{
		IncidentID:      params.IncidentID,
		UserID:          params.UserID,
		Channel:         params.Channel,
		EscalationLevel: params.Level,
		Tier:            params.Tier,
	}
	if err := a.services.Notifications.CreateQueued(ctx, log); err != nil {
		return "", err
	}
	return log.ID, nil
}

// ResolveStaleAlerts auto-resolves OPEN alerts older than the cutoff.
func (a *CoreDB) ResolveStaleAlerts(ctx context.Context, cutoffHours int) (int, error) {
	ids, err := a.services.Alerts.ResolveStale(ctx, time.Now().Add(-time.Duration(cutoffHours)*time.Hour))
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// GetExecution loads a workflow execution with its snapshot.
func (a *CoreDB) GetExecution(ctx context.Context, id string) (*model.WorkflowExecution, error) {
	exec, err := a.services.Executions.GetByID(ctx, id)
	if err != nil {
		return nil, nonRetryable(err)
	}
	return exec, nil
}

// MarkExecutionRunning transitions pending -> running.
func (a *CoreDB) MarkExecutionRunning(ctx context.Context, id string) (bool, error) {
	return a.services.Executions.MarkRunning(ctx, id)
}

// MarkExecutionCompleted transitions running -> completed.
func (a *CoreDB) MarkExecutionCompleted(ctx context.Context, id string) (bool, error) {
	return a.services.Executions.MarkCompleted(ctx, id)
}

// MarkExecutionFailedParams carries the terminal error.
type MarkExecutionFailedParams struct {
	ExecutionID string
	Error       string
}

// MarkExecutionFailed transitions to failed.
func (a *CoreDB) MarkExecutionFailed(ctx context.Context, params MarkExecutionFailedParams) (bool, error) {
	return a.services.Executions.MarkFailed(ctx, params.ExecutionID, params.Error)
}

// MarkExecutionCancelled transitions to cancelled.
func (a *CoreDB) MarkExecutionCancelled(ctx context.Context, id string) (bool, error) {
	return a.services.Executions.MarkCancelled(ctx, id)
}

// AppendCompletedNodeParams records one node outcome.
type AppendCompletedNodeParams struct {
	ExecutionID string
	Node        model.CompletedNode
}

// AppendCompletedNode appends a node outcome to the execution trace.
func (a *CoreDB) AppendCompletedNode(ctx context.Context, params AppendCompletedNodeParams) error {
	return a.services.Executions.AppendCompletedNode(ctx, params.ExecutionID, params.Node)
}

// GetWorkflowSecrets returns the decrypted secret map for interpolation.
func (a *CoreDB) GetWorkflowSecrets(ctx context.Context, workflowID string) (map[string]string, error) {
	return a.services.Workflows.Secrets(ctx, workflowID)
}

// FlowContextParams identifies the incident whose context feeds
// condition evaluation and template interpolation.
type FlowContextParams struct {
	IncidentID string
	WorkflowID string
}

// FlowContext is everything a flow execution needs about its incident.
type FlowContext struct {
	Fields  map[string]any
	Secrets map[string]string
}

// GetFlowContext assembles the dotted-path lookup context for one
// incident: incident attributes, assignee, team, and decrypted secrets.
// An empty incident id (manual run of a global workflow) yields a
// context with only the workflow and secret fields.
func (a *CoreDB) GetFlowContext(ctx context.Context, params FlowContextParams) (*FlowContext, error) {
	var incidentFields, assigneeFields, teamFields map[string]any

	if params.IncidentID != "" {
		inc, err := a.services.Incidents.GetByID(ctx, params.IncidentID)
		if err != nil {
			return nil, nonRetryable(err)
		}
		incidentFields = map[string]any{
			"id":       inc.ID,
			"title":    inc.Title,
			"status":   inc.Status,
			"priority": inc.Priority,
			"level":    inc.CurrentLevel,
		}

		if inc.AssignedUserID != nil {
			assignee, err := a.services.Users.GetByID(ctx, *inc.AssignedUserID)
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				return nil, err
			}
			if assignee != nil {
				assigneeFields = map[string]any{"id": assignee.ID, "name": assignee.Name, "email": assignee.Email}
			}
		}

		team, err := a.services.Teams.GetByID(ctx, inc.TeamID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		if team != nil {
			teamFields = map[string]any{"id": team.ID, "name": team.Name}
		}
	}

	secrets := map[string]string{}
	if params.WorkflowID != "" {
		var err error
		secrets, err = a.services.Workflows.Secrets(ctx, params.WorkflowID)
		if err != nil {
			return nil, err
		}
	}

	return &FlowContext{
		Fields:  flow.TemplateContext(incidentFields, assigneeFields, teamFields, map[string]any{"id": params.WorkflowID}, secrets),
		Secrets: secrets,
	}, nil
}

// MatchWorkflowsParams identifies one lifecycle event to offer to the
// workflow matcher. The activity builds the lookup fields itself from
// the incident and its latest alert.
type MatchWorkflowsParams struct {
	IncidentID string
	EventType  string
	NewState   string
	Chain      []string
}

// MatchedExecution is one scheduled execution for a matched workflow.
type MatchedExecution struct {
	ExecutionID string
	WorkflowID  string
}

// MatchAndScheduleWorkflows finds enabled workflows whose trigger fires
// for the event and creates a PENDING execution per match. Chain-guard
// rejections are skipped, not errors.
func (a *CoreDB) MatchAndScheduleWorkflows(ctx context.Context, params MatchWorkflowsParams) ([]MatchedExecution, error) {
	inc, err := a.services.Incidents.GetByID(ctx, params.IncidentID)
	if err != nil {
		return nil, nonRetryable(err)
	}

	fields := map[string]any{
		"incident": map[string]any{
			"id":       inc.ID,
			"title":    inc.Title,
			"status":   inc.Status,
			"priority": inc.Priority,
			"level":    inc.CurrentLevel,
		},
	}
	// Trigger conditions may reference alert metadata ("metadata.region").
	alerts, err := a.services.Alerts.ListByIncident(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	if len(alerts) > 0 {
		var metadata map[string]any
		if json.Unmarshal(alerts[len(alerts)-1].Metadata, &metadata) == nil {
			fields["metadata"] = metadata
		}
	}

	ev := flow.Event{Type: params.EventType, NewState: params.NewState, Fields: fields}
	matched, err := a.services.Executions.MatchWorkflows(ctx, a.services.Workflows, inc.TeamID, ev)
	if err != nil {
		return nil, err
	}

	var out []MatchedExecution
	for i := range matched {
		w := &matched[i]
		exec, err := a.services.Executions.Create(ctx, w, &inc.ID,
			model.TriggeredByEvent, ev.Type, params.Chain)
		if err != nil {
			if errors.Is(err, core.ErrValidation) {
				continue
			}
			return nil, err
		}
		out = append(out, MatchedExecution{ExecutionID: exec.ID, WorkflowID: w.ID})
	}
	return out, nil
}
