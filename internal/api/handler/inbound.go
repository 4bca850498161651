package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/config"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/events"
	"github.com/pagebell/pagebell/internal/ingest"
	"github.com/pagebell/pagebell/internal/model"
)

// Inbound handles replies from notification channels: SMS keywords,
// voice keypresses and Slack message buttons. Every reply is verified
// against the provider signature, and the sender must own a verified
// contact method on the incident's team before any transition runs.
type Inbound struct {
	users     *core.UserService
	teams     *core.TeamService
	incidents *core.IncidentService
	lc        *lifecycle
	cfg       *config.Config
	logger    zerolog.Logger
}

func NewInbound(users *core.UserService, teams *core.TeamService, incidents *core.IncidentService, tc temporalclient.Client, hub *events.Hub, cfg *config.Config, logger zerolog.Logger) *Inbound {
	return &Inbound{
		users:     users,
		teams:     teams,
		incidents: incidents,
		lc:        &lifecycle{tc: tc, hub: hub, logger: logger},
		cfg:       cfg,
		logger:    logger,
	}
}

// TwilioSMS handles reply keywords: "ACK <incident-id>" acknowledges,
// "RES <incident-id>" resolves.
func (h *Inbound) TwilioSMS(w http.ResponseWriter, r *http.Request) {
	if h.cfg.TwilioAuthToken == "" {
		response.WriteError(w, http.StatusServiceUnavailable, "inbound replies not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		response.WriteError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	fullURL := h.cfg.PublicBaseURL + r.URL.RequestURI()
	if err := ingest.VerifyTwilioSignature(h.cfg.TwilioAuthToken, fullURL, r.PostForm, r.Header.Get("X-Twilio-Signature")); err != nil {
		response.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	from := r.PostForm.Get("From")
	parts := strings.Fields(strings.TrimSpace(r.PostForm.Get("Body")))
	if len(parts) != 2 {
		writeTwiML(w, `<Message>Reply ACK &lt;incident-id&gt; or RES &lt;incident-id&gt;</Message>`)
		return
	}
	keyword, incidentID := strings.ToUpper(parts[0]), parts[1]

	user, err := h.users.FindByContactAddress(r.Context(), model.ChannelSMS, from)
	if err != nil {
		writeTwiML(w, `<Message>This number is not registered.</Message>`)
		return
	}

	switch keyword {
	case "ACK":
		msg := h.transition(r.Context(), incidentID, user.ID, false)
		writeTwiML(w, "<Message>"+msg+"</Message>")
	case "RES":
		msg := h.transition(r.Context(), incidentID, user.ID, true)
		writeTwiML(w, "<Message>"+msg+"</Message>")
	default:
		writeTwiML(w, `<Message>Reply ACK &lt;incident-id&gt; or RES &lt;incident-id&gt;</Message>`)
	}
}

// TwilioVoice handles keypresses gathered during a voice notification:
// 4 acknowledges, 6 resolves. The incident id rides in the callback
// URL the call was created with.
func (h *Inbound) TwilioVoice(w http.ResponseWriter, r *http.Request) {
	if h.cfg.TwilioAuthToken == "" {
		response.WriteError(w, http.StatusServiceUnavailable, "inbound replies not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		response.WriteError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	fullURL := h.cfg.PublicBaseURL + r.URL.RequestURI()
	if err := ingest.VerifyTwilioSignature(h.cfg.TwilioAuthToken, fullURL, r.PostForm, r.Header.Get("X-Twilio-Signature")); err != nil {
		response.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	incidentID := r.URL.Query().Get("incident_id")
	user, err := h.users.FindByContactAddress(r.Context(), model.ChannelVoice, r.PostForm.Get("To"))
	if err != nil {
		writeTwiML(w, `<Say>This number is not registered. Goodbye.</Say>`)
		return
	}

	switch r.PostForm.Get("Digits") {
	case "4":
		msg := h.transition(r.Context(), incidentID, user.ID, false)
		writeTwiML(w, "<Say>"+msg+"</Say>")
	case "6":
		msg := h.transition(r.Context(), incidentID, user.ID, true)
		writeTwiML(w, "<Say>"+msg+"</Say>")
	default:
		writeTwiML(w, `<Say>Press 4 to acknowledge or 6 to resolve.</Say>`)
	}
}

type slackInteraction struct {
	Type string `json:"type"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// Slack handles block action callbacks from incident messages. The
// button value carries the incident id; the Slack user id must map to
// a verified chat contact method.
func (h *Inbound) Slack(w http.ResponseWriter, r *http.Request) {
	if h.cfg.SlackSigningSecret == "" {
		response.WriteError(w, http.StatusServiceUnavailable, "inbound replies not configured")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "payload too large")
		return
	}
	err = ingest.VerifySlackSignature(h.cfg.SlackSigningSecret,
		r.Header.Get("X-Slack-Request-Timestamp"), body, r.Header.Get("X-Slack-Signature"), time.Now())
	if err != nil {
		response.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	var interaction slackInteraction
	if err := json.Unmarshal([]byte(form.Get("payload")), &interaction); err != nil {
		response.WriteError(w, http.StatusBadRequest, "malformed interaction payload")
		return
	}
	if len(interaction.Actions) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	user, err := h.users.FindByContactAddress(r.Context(), model.ChannelChat, interaction.User.ID)
	if err != nil {
		response.WriteJSON(w, http.StatusOK, map[string]string{"text": "Your Slack account is not linked."})
		return
	}

	action := interaction.Actions[0]
	var msg string
	switch action.ActionID {
	case "acknowledge":
		msg = h.transition(r.Context(), action.Value, user.ID, false)
	case "resolve":
		msg = h.transition(r.Context(), action.Value, user.ID, true)
	default:
		w.WriteHeader(http.StatusOK)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"text": msg})
}

// transition runs an inbound ack or resolve after the team ownership
// check and returns a human-readable outcome for the channel reply.
func (h *Inbound) transition(ctx context.Context, incidentID, userID string, resolve bool) string {
	inc, err := h.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return "Incident " + incidentID + " not found."
	}
	if !h.userOnTeam(ctx, inc.TeamID, userID) {
		h.logger.Warn().Str("incident_id", incidentID).Str("user_id", userID).
			Msg("inbound reply from user outside incident team")
		return "You are not on this incident's team."
	}

	if resolve {
		ok, err := h.incidents.Resolve(ctx, incidentID, "user:"+userID)
		if err != nil || !ok {
			return fmt.Sprintf("Incident %s is already %s.", incidentID, inc.Status)
		}
		h.lc.resolved(ctx, incidentID, inc.TeamID)
		return "Resolved " + incidentID + "."
	}

	ok, err := h.incidents.Acknowledge(ctx, incidentID, userID)
	if err != nil || !ok {
		return fmt.Sprintf("Incident %s is already %s.", incidentID, inc.Status)
	}
	h.lc.acknowledged(ctx, incidentID, inc.TeamID)
	return "Acknowledged " + incidentID + "."
}

func (h *Inbound) userOnTeam(ctx context.Context, teamID, userID string) bool {
	members, err := h.teams.Members(ctx, teamID)
	if err != nil {
		return false
	}
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func writeTwiML(w http.ResponseWriter, inner string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?><Response>%s</Response>", inner)
}
