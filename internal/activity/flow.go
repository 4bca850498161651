package activity

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/pagebell/pagebell/internal/flow"
)

// maxActionResponse caps how much of an action response is stored in
// the execution trace.
const maxActionResponse = 8 * 1024

// FlowActions contains the outbound action activities for workflow
// executions: webhooks, ticket creation, chat notifications.
type FlowActions struct {
	client *http.Client
}

// NewFlowActions creates a new FlowActions activity struct.
func NewFlowActions() *FlowActions {
	return &FlowActions{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// WebhookActionConfig is the action_config shape for webhook nodes.
// All string fields are template-interpolated before the call.
type WebhookActionConfig struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	Body     string            `json:"body"`
	AuthMode string            `json:"auth_mode"` // none | bearer | basic
	AuthUser string            `json:"auth_user"`
	AuthPass string            `json:"auth_pass"`
	Token    string            `json:"token"`
}

// ExecuteActionParams carries one action node plus its interpolation
// context.
type ExecuteActionParams struct {
	ExecutionID  string
	NodeID       string
	ActionType   string
	ActionConfig json.RawMessage
	Fields       map[string]any
	TimeoutSecs  int
}

// ExecuteAction dispatches on the node's action type. Unknown action
// types (including the deferred runbook action) fail permanently.
func (a *FlowActions) ExecuteAction(ctx context.Context, params ExecuteActionParams) (json.RawMessage, error) {
	if params.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutSecs)*time.Second)
		defer cancel()
	}

	switch params.ActionType {
	case flow.ActionWebhook:
		return a.executeWebhook(ctx, params)
	case flow.ActionTicketJira, flow.ActionTicketLinear:
		return a.executeTicket(ctx, params)
	case flow.ActionNotifySlack, flow.ActionNotifyTeams:
		return a.executeChat(ctx, params)
	default:
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("action type %q is not executable", params.ActionType),
			"UNKNOWN_ACTION", nil)
	}
}

func (a *FlowActions) executeWebhook(ctx context.Context, params ExecuteActionParams) (json.RawMessage, error) {
	var cfg WebhookActionConfig
	if err := json.Unmarshal(params.ActionConfig, &cfg); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("malformed webhook config", "BAD_CONFIG", err)
	}

	url, err := flow.Interpolate(cfg.URL, params.Fields)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "TEMPLATE_ERROR", err)
	}
	body, err := flow.Interpolate(cfg.Body, params.Fields)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "TEMPLATE_ERROR", err)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("build webhook request", "REQUEST_ERROR", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		rendered, err := flow.Interpolate(v, params.Fields)
		if err != nil {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "TEMPLATE_ERROR", err)
		}
		req.Header.Set(k, rendered)
	}

	switch cfg.AuthMode {
	case "bearer":
		token, err := flow.Interpolate(cfg.Token, params.Fields)
		if err != nil {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "TEMPLATE_ERROR", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case "basic":
		user, uerr := flow.Interpolate(cfg.AuthUser, params.Fields)
		pass, perr := flow.Interpolate(cfg.AuthPass, params.Fields)
		if uerr != nil || perr != nil {
			return nil, temporal.NewNonRetryableApplicationError("bad basic auth template", "TEMPLATE_ERROR", nil)
		}
		req.Header.Set("Authorization",
			"Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	}

	return a.do(req)
}

// TicketActionConfig is the action_config shape for ticket nodes.
type TicketActionConfig struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
	Project  string `json:"project"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

func (a *FlowActions) executeTicket(ctx context.Context, params ExecuteActionParams) (json.RawMessage, error) {
	var cfg TicketActionConfig
	if err := json.Unmarshal(params.ActionConfig, &cfg); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("malformed ticket config", "BAD_CONFIG", err)
	}

	title, err := flow.Interpolate(cfg.Title, params.Fields)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "TEMPLATE_ERROR", err)
	}
	body, err := flow.Interpolate(cfg.Body, params.Fields)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "TEMPLATE_ERROR", err)
	}
	token, err := flow.Interpolate(cfg.Token, params.Fields)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "TEMPLATE_ERROR", err)
	}

	var payload any
	switch params.ActionType {
	case flow.ActionTicketJira:
		payload = map[string]any{
			"fields": map[string]any{
				"project":     map[string]string{"key": cfg.Project},
				"summary":     title,
				"description": body,
				"issuetype":   map[string]string{"name": "Incident"},
			},
		}
	default: // linear
		payload = map[string]any{
			"teamId":      cfg.Project,
			"title":       title,
			"description": body,
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("encode ticket payload", "MARSHAL_ERROR", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("build ticket request", "REQUEST_ERROR", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	return a.do(req)
}

// ChatActionConfig is the action_config shape for chat notification nodes.
type ChatActionConfig struct {
	WebhookURL string `json:"webhook_url"`
	Message    string `json:"message"`
}

func (a *FlowActions) executeChat(ctx context.Context, params ExecuteActionParams) (json.RawMessage, error) {
	var cfg ChatActionConfig
	if err := json.Unmarshal(params.ActionConfig, &cfg); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("malformed chat config", "BAD_CONFIG", err)
	}

	message, err := flow.Interpolate(cfg.Message, params.Fields)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "TEMPLATE_ERROR", err)
	}

	// Slack and Teams both accept a plain text envelope on incoming
	// webhook URLs.
	encoded, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("encode chat payload", "MARSHAL_ERROR", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("build chat request", "REQUEST_ERROR", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return a.do(req)
}

// do executes the request. 4xx responses are permanent failures; 5xx
// and transport errors stay retryable.
func (a *FlowActions) do(req *http.Request) (json.RawMessage, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action request to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxActionResponse))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if json.Valid(body) {
			return body, nil
		}
		quoted, _ := json.Marshal(string(body))
		return quoted, nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("action endpoint returned %d", resp.StatusCode),
			"CLIENT_ERROR", nil)
	}
	return nil, fmt.Errorf("action endpoint returned %d", resp.StatusCode)
}
