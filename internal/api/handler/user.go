package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
)

type User struct {
	svc *core.UserService
}

func NewUser(svc *core.UserService) *User {
	return &User{svc: svc}
}

// Create godoc
//
//	@Summary		Create a user
//	@Tags			Users
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreateUser	true	"User details"
//	@Success		201		{object}	model.User
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/users [post]
func (h *User) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateUser
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := &model.User{
		Name:     req.Name,
		Email:    req.Email,
		Timezone: req.Timezone,
		IsActive: true,
	}
	if err := h.svc.Create(r.Context(), user); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, user)
}

// Get godoc
//
//	@Summary		Get a user
//	@Tags			Users
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	model.User
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/users/{id} [get]
func (h *User) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, user)
}

// AddContactMethod godoc
//
//	@Summary		Register a contact method
//	@Description	The endpoint starts unverified; inbound replies from it are ignored until verified.
//	@Tags			Users
//	@Security		ApiKeyAuth
//	@Param			id		path		string						true	"User ID"
//	@Param			body	body		request.AddContactMethod	true	"Channel and address"
//	@Success		201		{object}	model.ContactMethod
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/users/{id}/contact-methods [post]
func (h *User) AddContactMethod(w http.ResponseWriter, r *http.Request) {
	var req request.AddContactMethod
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cm := &model.ContactMethod{
		UserID:  chi.URLParam(r, "id"),
		Channel: req.Channel,
		Address: req.Address,
	}
	if err := h.svc.AddContactMethod(r.Context(), cm); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, cm)
}

// VerifyContactMethod godoc
//
//	@Summary		Mark a contact method verified
//	@Tags			Users
//	@Security		ApiKeyAuth
//	@Param			id				path	string	true	"User ID"
//	@Param			contactMethodID	path	string	true	"Contact method ID"
//	@Success		204
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/users/{id}/contact-methods/{contactMethodID}/verify [post]
func (h *User) VerifyContactMethod(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.VerifyContactMethod(r.Context(), chi.URLParam(r, "contactMethodID")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
