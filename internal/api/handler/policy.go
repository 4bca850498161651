package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
)

type Policy struct {
	svc *core.PolicyService
}

func NewPolicy(svc *core.PolicyService) *Policy {
	return &Policy{svc: svc}
}

// Create godoc
//
//	@Summary		Create an escalation policy
//	@Description	Levels must be numbered 1..N without gaps.
//	@Tags			Escalation Policies
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreatePolicy	true	"Policy with ordered levels"
//	@Success		201		{object}	model.EscalationPolicy
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/escalation-policies [post]
func (h *Policy) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreatePolicy
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy := &model.EscalationPolicy{
		TeamID:      req.TeamID,
		Name:        req.Name,
		RepeatCount: req.RepeatCount,
		IsActive:    true,
	}
	for _, l := range req.Levels {
		policy.Levels = append(policy.Levels, model.EscalationLevel{
			LevelNumber:    l.LevelNumber,
			TargetType:     l.TargetType,
			TargetID:       l.TargetID,
			TimeoutMinutes: l.TimeoutMinutes,
		})
	}

	if err := h.svc.Create(r.Context(), policy); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, policy)
}

// Get godoc
//
//	@Summary		Get an escalation policy
//	@Tags			Escalation Policies
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Policy ID"
//	@Success		200	{object}	model.EscalationPolicy
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/escalation-policies/{id} [get]
func (h *Policy) Get(w http.ResponseWriter, r *http.Request) {
	policy, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, policy)
}

// ListByTeam godoc
//
//	@Summary		List a team's escalation policies
//	@Tags			Escalation Policies
//	@Security		ApiKeyAuth
//	@Param			teamID	path		string	true	"Team ID"
//	@Success		200		{array}		model.EscalationPolicy
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/teams/{teamID}/escalation-policies [get]
func (h *Policy) ListByTeam(w http.ResponseWriter, r *http.Request) {
	policies, err := h.svc.ListByTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, policies)
}
