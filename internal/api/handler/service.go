package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
)

type Service struct {
	svc *core.ServiceService
}

func NewService(svc *core.ServiceService) *Service {
	return &Service{svc: svc}
}

// Create godoc
//
//	@Summary		Create a service
//	@Description	A routing key is generated when none is supplied.
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreateService	true	"Service details"
//	@Success		201		{object}	model.Service
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/services [post]
func (h *Service) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateService
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := &model.Service{
		TeamID:             req.TeamID,
		Name:               req.Name,
		RoutingKey:         req.RoutingKey,
		EscalationPolicyID: req.EscalationPolicyID,
	}
	if err := h.svc.Create(r.Context(), svc); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, svc)
}

// Get godoc
//
//	@Summary		Get a service
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Service ID"
//	@Success		200	{object}	model.Service
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/services/{id} [get]
func (h *Service) Get(w http.ResponseWriter, r *http.Request) {
	svc, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, svc)
}

// ListByTeam godoc
//
//	@Summary		List a team's services
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			teamID	path		string	true	"Team ID"
//	@Success		200		{array}		model.Service
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/teams/{teamID}/services [get]
func (h *Service) ListByTeam(w http.ResponseWriter, r *http.Request) {
	services, err := h.svc.ListByTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, services)
}

// SetStatus godoc
//
//	@Summary		Set service lifecycle status
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id		path	string						true	"Service ID"
//	@Param			body	body	request.SetServiceStatus	true	"New status"
//	@Success		204
//	@Failure		400	{object}	response.ErrorResponse
//	@Router			/services/{id}/status [put]
func (h *Service) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req request.SetServiceStatus
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
