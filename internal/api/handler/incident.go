package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/events"
)

type Incident struct {
	incidents     *core.IncidentService
	notifications *core.NotificationLogService
	lc            *lifecycle
}

func NewIncident(incidents *core.IncidentService, notifications *core.NotificationLogService, tc temporalclient.Client, hub *events.Hub, logger zerolog.Logger) *Incident {
	return &Incident{
		incidents:     incidents,
		notifications: notifications,
		lc:            &lifecycle{tc: tc, hub: hub, logger: logger},
	}
}

// List godoc
//
//	@Summary		List incidents
//	@Description	Returns a paginated list of incidents with optional filters.
//	@Tags			Incidents
//	@Security		ApiKeyAuth
//	@Param			status		query		string	false	"Filter by status"
//	@Param			priority	query		string	false	"Filter by priority"
//	@Param			team_id		query		string	false	"Filter by team"
//	@Param			limit		query		int		false	"Page size"			default(50)
//	@Param			cursor		query		string	false	"Pagination cursor"
//	@Success		200			{object}	response.PaginatedResponse{items=[]model.Incident}
//	@Failure		500			{object}	response.ErrorResponse
//	@Router			/incidents [get]
func (h *Incident) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	filters := core.IncidentFilters{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		TeamID:   q.Get("team_id"),
	}

	incidents, hasMore, err := h.incidents.List(r.Context(), filters, limit, q.Get("cursor"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	var nextCursor string
	if hasMore && len(incidents) > 0 {
		nextCursor = incidents[len(incidents)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, incidents, nextCursor, hasMore)
}

// Get godoc
//
//	@Summary		Get an incident
//	@Tags			Incidents
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Incident ID"
//	@Success		200	{object}	model.Incident
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/incidents/{id} [get]
func (h *Incident) Get(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, inc)
}

// Events godoc
//
//	@Summary		Incident timeline
//	@Description	Returns the incident's append-only event timeline, oldest first.
//	@Tags			Incidents
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Incident ID"
//	@Success		200	{array}		model.IncidentEvent
//	@Failure		500	{object}	response.ErrorResponse
//	@Router			/incidents/{id}/events [get]
func (h *Incident) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.incidents.ListEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, events)
}

// Notifications godoc
//
//	@Summary		Incident notification log
//	@Tags			Incidents
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Incident ID"
//	@Success		200	{array}		model.NotificationLog
//	@Failure		500	{object}	response.ErrorResponse
//	@Router			/incidents/{id}/notifications [get]
func (h *Incident) Notifications(w http.ResponseWriter, r *http.Request) {
	logs, err := h.notifications.ListByIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, logs)
}

// Acknowledge godoc
//
//	@Summary		Acknowledge an incident
//	@Description	Transitions OPEN to ACKNOWLEDGED and stops the escalation timer.
//	@Tags			Incidents
//	@Security		ApiKeyAuth
//	@Param			id		path	string						true	"Incident ID"
//	@Param			body	body	request.AcknowledgeIncident	true	"Acknowledging user"
//	@Success		204
//	@Failure		400	{object}	response.ErrorResponse
//	@Failure		409	{object}	response.ErrorResponse
//	@Router			/incidents/{id}/acknowledge [post]
func (h *Incident) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req request.AcknowledgeIncident
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := h.incidents.Acknowledge(r.Context(), id, req.UserID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if !ok {
		response.WriteError(w, http.StatusConflict, "incident is not open")
		return
	}

	inc, err := h.incidents.GetByID(r.Context(), id)
	if err == nil {
		h.lc.acknowledged(r.Context(), id, inc.TeamID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resolve godoc
//
//	@Summary		Resolve an incident
//	@Tags			Incidents
//	@Security		ApiKeyAuth
//	@Param			id	path	string	true	"Incident ID"
//	@Success		204
//	@Failure		409	{object}	response.ErrorResponse
//	@Router			/incidents/{id}/resolve [post]
func (h *Incident) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.incidents.Resolve(r.Context(), id, actorFromRequest(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if !ok {
		response.WriteError(w, http.StatusConflict, "incident is not open or acknowledged")
		return
	}

	inc, err := h.incidents.GetByID(r.Context(), id)
	if err == nil {
		h.lc.resolved(r.Context(), id, inc.TeamID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close godoc
//
//	@Summary		Close an incident
//	@Description	Transitions RESOLVED to CLOSED. Terminal.
//	@Tags			Incidents
//	@Security		ApiKeyAuth
//	@Param			id	path	string	true	"Incident ID"
//	@Success		204
//	@Failure		409	{object}	response.ErrorResponse
//	@Router			/incidents/{id}/close [post]
func (h *Incident) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.incidents.Close(r.Context(), id, actorFromRequest(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if !ok {
		response.WriteError(w, http.StatusConflict, "incident is not resolved")
		return
	}

	inc, err := h.incidents.GetByID(r.Context(), id)
	if err == nil {
		h.lc.closed(r.Context(), id, inc.TeamID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddNote godoc
//
//	@Summary		Add a note to the incident timeline
//	@Tags			Incidents
//	@Security		ApiKeyAuth
//	@Param			id		path	string					true	"Incident ID"
//	@Param			body	body	request.AddIncidentNote	true	"Note text"
//	@Success		204
//	@Failure		400	{object}	response.ErrorResponse
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/incidents/{id}/notes [post]
func (h *Incident) AddNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req request.AddIncidentNote
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	inc, err := h.incidents.GetByID(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	h.incidents.RecordEvent(r.Context(), id, actorFromRequest(r), "note", req.Detail)
	h.lc.noteAdded(r.Context(), id, inc.TeamID)
	w.WriteHeader(http.StatusNoContent)
}
