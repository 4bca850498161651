package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
)

type Integration struct {
	svc *core.IntegrationService
}

func NewIntegration(svc *core.IntegrationService) *Integration {
	return &Integration{svc: svc}
}

// Create godoc
//
//	@Summary		Create a webhook integration
//	@Description	The shared secret signs every delivery; it is write-only after creation.
//	@Tags			Integrations
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreateIntegration	true	"Integration details"
//	@Success		201		{object}	model.Integration
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/integrations [post]
func (h *Integration) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateIntegration
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	integ := &model.Integration{
		Name:               req.Name,
		Provider:           req.Provider,
		Secret:             req.Secret,
		SignatureHeader:    req.SignatureHeader,
		SignatureAlgorithm: req.SignatureAlgorithm,
		SignatureFormat:    req.SignatureFormat,
		DefaultServiceID:   req.DefaultServiceID,
		DedupWindowMinutes: req.DedupWindowMinutes,
		IsActive:           true,
	}
	if err := h.svc.Create(r.Context(), integ); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, integ)
}

// Get godoc
//
//	@Summary		Get an integration
//	@Tags			Integrations
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Integration ID"
//	@Success		200	{object}	model.Integration
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/integrations/{id} [get]
func (h *Integration) Get(w http.ResponseWriter, r *http.Request) {
	integ, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, integ)
}

// List godoc
//
//	@Summary		List integrations
//	@Tags			Integrations
//	@Security		ApiKeyAuth
//	@Success		200	{array}		model.Integration
//	@Failure		500	{object}	response.ErrorResponse
//	@Router			/integrations [get]
func (h *Integration) List(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, integrations)
}

// Enable godoc
//
//	@Summary		Enable an integration
//	@Tags			Integrations
//	@Security		ApiKeyAuth
//	@Param			id	path	string	true	"Integration ID"
//	@Success		204
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/integrations/{id}/enable [post]
func (h *Integration) Enable(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SetActive(r.Context(), chi.URLParam(r, "id"), true); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Disable godoc
//
//	@Summary		Disable an integration
//	@Description	Deliveries start answering 404 immediately.
//	@Tags			Integrations
//	@Security		ApiKeyAuth
//	@Param			id	path	string	true	"Integration ID"
//	@Success		204
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/integrations/{id}/disable [post]
func (h *Integration) Disable(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SetActive(r.Context(), chi.URLParam(r, "id"), false); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
