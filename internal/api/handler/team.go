package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
)

type Team struct {
	svc *core.TeamService
}

func NewTeam(svc *core.TeamService) *Team {
	return &Team{svc: svc}
}

// Create godoc
//
//	@Summary		Create a team
//	@Tags			Teams
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreateTeam	true	"Team details"
//	@Success		201		{object}	model.Team
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/teams [post]
func (h *Team) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateTeam
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	team := &model.Team{Name: req.Name, ChatChannel: req.ChatChannel}
	if err := h.svc.Create(r.Context(), team); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, team)
}

// Get godoc
//
//	@Summary		Get a team
//	@Tags			Teams
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Team ID"
//	@Success		200	{object}	model.Team
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/teams/{id} [get]
func (h *Team) Get(w http.ResponseWriter, r *http.Request) {
	team, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, team)
}

// AddMember godoc
//
//	@Summary		Add a team member
//	@Tags			Teams
//	@Security		ApiKeyAuth
//	@Param			id		path		string					true	"Team ID"
//	@Param			body	body		request.AddTeamMember	true	"User and role"
//	@Success		201		{object}	model.TeamMember
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/teams/{id}/members [post]
func (h *Team) AddMember(w http.ResponseWriter, r *http.Request) {
	var req request.AddTeamMember
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	member := &model.TeamMember{
		TeamID: chi.URLParam(r, "id"),
		UserID: req.UserID,
		Role:   req.Role,
	}
	if err := h.svc.AddMember(r.Context(), member); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, member)
}

// Members godoc
//
//	@Summary		List team members
//	@Tags			Teams
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Team ID"
//	@Success		200	{array}		model.TeamMember
//	@Failure		500	{object}	response.ErrorResponse
//	@Router			/teams/{id}/members [get]
func (h *Team) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.Members(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, members)
}

// SetTechnicalTag godoc
//
//	@Summary		Bind a technical tag to the team
//	@Description	Alerts carrying the tag route to this team.
//	@Tags			Teams
//	@Security		ApiKeyAuth
//	@Param			id		path	string					true	"Team ID"
//	@Param			body	body	request.SetTechnicalTag	true	"Tag name"
//	@Success		204
//	@Failure		400	{object}	response.ErrorResponse
//	@Router			/teams/{id}/technical-tags [put]
func (h *Team) SetTechnicalTag(w http.ResponseWriter, r *http.Request) {
	var req request.SetTechnicalTag
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.SetTechnicalTag(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
