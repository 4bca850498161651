package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
	wf "github.com/pagebell/pagebell/internal/workflow"
)

type Workflow struct {
	workflows  *core.WorkflowService
	executions *core.ExecutionService
	tc         temporalclient.Client
	logger     zerolog.Logger
}

func NewWorkflow(workflows *core.WorkflowService, executions *core.ExecutionService, tc temporalclient.Client, logger zerolog.Logger) *Workflow {
	return &Workflow{workflows: workflows, executions: executions, tc: tc, logger: logger}
}

// List godoc
//
//	@Summary		List workflows
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			team_id	query		string	false	"Narrow to one team plus globals"
//	@Success		200		{array}		model.Workflow
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/workflows [get]
func (h *Workflow) List(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.workflows.List(r.Context(), r.URL.Query().Get("team_id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, workflows)
}

// Create godoc
//
//	@Summary		Create a workflow
//	@Description	Validates the definition DAG and records it as version 1.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreateWorkflow	true	"Workflow definition"
//	@Success		201		{object}	model.Workflow
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/workflows [post]
func (h *Workflow) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateWorkflow
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := actorFromRequest(r)
	workflow := &model.Workflow{
		Name:        req.Name,
		Description: req.Description,
		ScopeType:   req.ScopeType,
		TeamID:      req.TeamID,
		IsEnabled:   true,
		Definition:  req.Definition,
		CreatedBy:   &actor,
	}
	if err := h.workflows.Create(r.Context(), workflow); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, workflow)
}

// Get godoc
//
//	@Summary		Get a workflow
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Workflow ID"
//	@Success		200	{object}	model.Workflow
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/workflows/{id} [get]
func (h *Workflow) Get(w http.ResponseWriter, r *http.Request) {
	workflow, err := h.workflows.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, workflow)
}

// Update godoc
//
//	@Summary		Update a workflow definition
//	@Description	Records a new version. Fails with 409 when the submitted base version is stale.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id		path		string					true	"Workflow ID"
//	@Param			body	body		request.UpdateWorkflow	true	"New definition and base version"
//	@Success		200		{object}	model.Workflow
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		409		{object}	response.ErrorResponse
//	@Router			/workflows/{id} [put]
func (h *Workflow) Update(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateWorkflow
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflow, err := h.workflows.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	workflow.Description = req.Description
	workflow.Definition = req.Definition
	workflow.Version = req.Version
	if err := h.workflows.Update(r.Context(), workflow, req.ChangeNote); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, workflow)
}

// Delete godoc
//
//	@Summary		Delete a workflow
//	@Description	Refuses with 409 while executions are pending or running.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id	path	string	true	"Workflow ID"
//	@Success		204
//	@Failure		409	{object}	response.ErrorResponse
//	@Router			/workflows/{id} [delete]
func (h *Workflow) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.workflows.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetEnabled godoc
//
//	@Summary		Enable or disable a workflow
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id		path	string						true	"Workflow ID"
//	@Param			body	body	request.SetWorkflowEnabled	true	"Enabled flag"
//	@Success		204
//	@Failure		400	{object}	response.ErrorResponse
//	@Router			/workflows/{id}/enabled [put]
func (h *Workflow) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req request.SetWorkflowEnabled
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.workflows.SetEnabled(r.Context(), chi.URLParam(r, "id"), *req.Enabled); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVersions godoc
//
//	@Summary		List workflow versions
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Workflow ID"
//	@Success		200	{array}		model.WorkflowVersion
//	@Failure		500	{object}	response.ErrorResponse
//	@Router			/workflows/{id}/versions [get]
func (h *Workflow) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.workflows.ListVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, versions)
}

// Rollback godoc
//
//	@Summary		Roll back to an earlier version
//	@Description	Restores the old definition as a new version; history stays append-only.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id		path		string						true	"Workflow ID"
//	@Param			body	body		request.RollbackWorkflow	true	"Target version"
//	@Success		200		{object}	model.Workflow
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		404		{object}	response.ErrorResponse
//	@Router			/workflows/{id}/rollback [post]
func (h *Workflow) Rollback(w http.ResponseWriter, r *http.Request) {
	var req request.RollbackWorkflow
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	workflow, err := h.workflows.Rollback(r.Context(), chi.URLParam(r, "id"), req.ToVersion)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, workflow)
}

// Export godoc
//
//	@Summary		Export a workflow
//	@Description	Returns the portable definition. Ids, team bindings and secrets are stripped.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Workflow ID"
//	@Success		200	{object}	core.WorkflowExport
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/workflows/{id}/export [get]
func (h *Workflow) Export(w http.ResponseWriter, r *http.Request) {
	export, err := h.workflows.Export(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, export)
}

// Import godoc
//
//	@Summary		Import a workflow export
//	@Description	Creates a fresh disabled workflow. Secrets must be re-entered.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			body	body		request.ImportWorkflow	true	"Export payload with target scope"
//	@Success		201		{object}	model.Workflow
//	@Failure		400		{object}	response.ErrorResponse
//	@Router			/workflows/import [post]
func (h *Workflow) Import(w http.ResponseWriter, r *http.Request) {
	var req request.ImportWorkflow
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := json.Marshal(req.Export)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "malformed export payload")
		return
	}
	actor := actorFromRequest(r)
	workflow, err := h.workflows.Import(r.Context(), raw, req.ScopeType, req.TeamID, &actor)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, workflow)
}

// SetSecret godoc
//
//	@Summary		Store a workflow secret
//	@Description	Secrets are sealed at rest and never leave the server in plaintext.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id		path	string						true	"Workflow ID"
//	@Param			body	body	request.SetWorkflowSecret	true	"Secret name and value"
//	@Success		204
//	@Failure		400	{object}	response.ErrorResponse
//	@Router			/workflows/{id}/secrets [put]
func (h *Workflow) SetSecret(w http.ResponseWriter, r *http.Request) {
	var req request.SetWorkflowSecret
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.workflows.SetSecret(r.Context(), chi.URLParam(r, "id"), req.Name, req.Value); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executeResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// Execute godoc
//
//	@Summary		Execute a workflow manually
//	@Description	Schedules a run against the workflow's current definition snapshot.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id		path		string					true	"Workflow ID"
//	@Param			body	body		request.ExecuteWorkflow	true	"Optional incident context"
//	@Success		202		{object}	executeResponse
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		409		{object}	response.ErrorResponse
//	@Router			/workflows/{id}/execute [post]
func (h *Workflow) Execute(w http.ResponseWriter, r *http.Request) {
	var req request.ExecuteWorkflow
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflow, err := h.workflows.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if !workflow.IsEnabled {
		response.WriteError(w, http.StatusConflict, "workflow is disabled")
		return
	}

	var incidentID *string
	if req.IncidentID != "" {
		incidentID = &req.IncidentID
	}
	exec, err := h.executions.Create(r.Context(), workflow, incidentID, actorFromRequest(r), "manual", nil)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	_, err = h.tc.ExecuteWorkflow(r.Context(), temporalclient.StartWorkflowOptions{
		ID:        "flow-" + exec.ID,
		TaskQueue: wf.TaskQueueFlows,
	}, "FlowExecutionWorkflow", wf.FlowExecutionParams{ExecutionID: exec.ID})
	if err != nil {
		h.logger.Error().Err(err).Str("execution_id", exec.ID).Msg("failed to start flow execution")
		_, _ = h.executions.MarkFailed(r.Context(), exec.ID, "failed to enqueue execution")
		response.WriteError(w, http.StatusInternalServerError, "failed to enqueue execution")
		return
	}

	response.WriteJSON(w, http.StatusAccepted, executeResponse{ExecutionID: exec.ID, Status: exec.Status})
}

// ListExecutions godoc
//
//	@Summary		List workflow executions
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id		path		string	true	"Workflow ID"
//	@Param			limit	query		int		false	"Page size"	default(50)
//	@Success		200		{array}		model.WorkflowExecution
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/workflows/{id}/executions [get]
func (h *Workflow) ListExecutions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	executions, err := h.executions.ListByWorkflow(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, executions)
}

// GetExecution godoc
//
//	@Summary		Get an execution
//	@Description	Returns the run with its frozen definition snapshot and node trace.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Execution ID"
//	@Success		200	{object}	model.WorkflowExecution
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/executions/{id} [get]
func (h *Workflow) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.executions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, exec)
}

// CancelExecution godoc
//
//	@Summary		Cancel an execution
//	@Description	Signals the running executor; the run stops at the next node boundary.
//	@Tags			Workflows
//	@Security		ApiKeyAuth
//	@Param			id	path	string	true	"Execution ID"
//	@Success		202
//	@Failure		404	{object}	response.ErrorResponse
//	@Failure		409	{object}	response.ErrorResponse
//	@Router			/executions/{id}/cancel [post]
func (h *Workflow) CancelExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exec, err := h.executions.GetByID(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	switch exec.Status {
	case model.ExecutionPending, model.ExecutionRunning:
	default:
		response.WriteError(w, http.StatusConflict, "execution already finished")
		return
	}

	if err := h.tc.SignalWorkflow(r.Context(), "flow-"+id, "", wf.SignalCancel, nil); err != nil {
		response.WriteError(w, http.StatusConflict, "execution is not cancellable: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
