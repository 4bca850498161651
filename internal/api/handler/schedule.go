package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
)

type Schedule struct {
	schedules *core.ScheduleService
	oncall    *core.OnCallService
}

func NewSchedule(schedules *core.ScheduleService, oncall *core.OnCallService) *Schedule {
	return &Schedule{schedules: schedules, oncall: oncall}
}

// Create godoc
//
//	@Summary		Create an on-call schedule
//	@Description	The timezone and recurrence rule are validated before anything is stored.
//	@Tags			Schedules
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreateSchedule	true	"Schedule details"
//	@Success		201		{object}	model.Schedule
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/schedules [post]
func (h *Schedule) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateSchedule
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched := &model.Schedule{
		TeamID:         req.TeamID,
		Name:           req.Name,
		Timezone:       req.Timezone,
		StartDate:      req.StartDate,
		RecurrenceRule: req.RecurrenceRule,
		RotationUsers:  req.RotationUsers,
		IsActive:       true,
	}
	if err := h.schedules.Create(r.Context(), sched); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, sched)
}

// Get godoc
//
//	@Summary		Get a schedule
//	@Tags			Schedules
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Schedule ID"
//	@Success		200	{object}	model.Schedule
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/schedules/{id} [get]
func (h *Schedule) Get(w http.ResponseWriter, r *http.Request) {
	sched, err := h.schedules.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, sched)
}

// ListByTeam godoc
//
//	@Summary		List a team's schedules
//	@Tags			Schedules
//	@Security		ApiKeyAuth
//	@Param			teamID	path		string	true	"Team ID"
//	@Success		200		{array}		model.Schedule
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/teams/{teamID}/schedules [get]
func (h *Schedule) ListByTeam(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.ListByTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, schedules)
}

// AddLayer godoc
//
//	@Summary		Add a rotation layer
//	@Description	Higher priority layers shadow lower ones when their restrictions apply.
//	@Tags			Schedules
//	@Security		ApiKeyAuth
//	@Param			id		path		string					true	"Schedule ID"
//	@Param			body	body		request.AddScheduleLayer	true	"Layer details"
//	@Success		201		{object}	model.ScheduleLayer
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/schedules/{id}/layers [post]
func (h *Schedule) AddLayer(w http.ResponseWriter, r *http.Request) {
	var req request.AddScheduleLayer
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	layer := &model.ScheduleLayer{
		ScheduleID:     chi.URLParam(r, "id"),
		Priority:       req.Priority,
		Timezone:       req.Timezone,
		StartDate:      req.StartDate,
		RecurrenceRule: req.RecurrenceRule,
		RotationUsers:  req.RotationUsers,
		Restrictions:   req.Restrictions,
	}
	if err := h.schedules.AddLayer(r.Context(), layer); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, layer)
}

// AddOverride godoc
//
//	@Summary		Add a manual override
//	@Description	The override user is on call for the whole window, regardless of rotation.
//	@Tags			Schedules
//	@Security		ApiKeyAuth
//	@Param			id		path		string						true	"Schedule ID"
//	@Param			body	body		request.AddScheduleOverride	true	"Override window"
//	@Success		201		{object}	model.ScheduleOverride
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/schedules/{id}/overrides [post]
func (h *Schedule) AddOverride(w http.ResponseWriter, r *http.Request) {
	var req request.AddScheduleOverride
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	override := &model.ScheduleOverride{
		ScheduleID: chi.URLParam(r, "id"),
		UserID:     req.UserID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Reason:     req.Reason,
	}
	if err := h.schedules.AddOverride(r.Context(), override); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, override)
}

// OnCall godoc
//
//	@Summary		Who is on call
//	@Description	Resolves the current responder for the schedule, optionally at a given instant.
//	@Tags			Schedules
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Schedule ID"
//	@Param			at	query		string	false	"RFC 3339 instant, defaults to now"
//	@Success		200	{object}	core.OnCallResult
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/schedules/{id}/oncall [get]
func (h *Schedule) OnCall(w http.ResponseWriter, r *http.Request) {
	at := time.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, "at must be RFC 3339")
			return
		}
		at = parsed
	}

	result, err := h.oncall.CurrentOnCall(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if result == nil {
		response.WriteError(w, http.StatusNotFound, "nobody is on call")
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

// TeamOnCall godoc
//
//	@Summary		Who is on call for a team
//	@Tags			Schedules
//	@Security		ApiKeyAuth
//	@Param			teamID	path		string	true	"Team ID"
//	@Success		200		{object}	core.OnCallResult
//	@Failure		404		{object}	response.ErrorResponse
//	@Router			/teams/{teamID}/oncall [get]
func (h *Schedule) TeamOnCall(w http.ResponseWriter, r *http.Request) {
	result, err := h.oncall.CurrentOnCallForTeam(r.Context(), chi.URLParam(r, "teamID"), time.Now())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if result == nil {
		response.WriteError(w, http.StatusNotFound, "nobody is on call")
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}
