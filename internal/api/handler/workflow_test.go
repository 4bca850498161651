package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newWorkflowHandler() *Workflow {
	return NewWorkflow(nil, nil, nil, testLogger())
}

// --- Create ---

func TestWorkflowCreate_InvalidJSON(t *testing.T) {
	h := newWorkflowHandler()
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/workflows", "{bad json")
	r = withAPIKey(r)

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestWorkflowCreate_BadScopeType(t *testing.T) {
	h := newWorkflowHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/workflows", map[string]any{
		"name":       "page the owner",
		"scope_type": "galaxy",
		"definition": map[string]any{"nodes": []any{}},
	})
	r = withAPIKey(r)

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

// --- Rollback ---

func TestWorkflowRollback_MissingVersion(t *testing.T) {
	h := newWorkflowHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/workflows/wf-1/rollback", map[string]any{})
	r = withChiURLParam(r, "id", "wf-1")

	h.Rollback(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

// --- SetEnabled ---

func TestWorkflowSetEnabled_MissingFlag(t *testing.T) {
	h := newWorkflowHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPut, "/workflows/wf-1/enabled", map[string]any{})
	r = withChiURLParam(r, "id", "wf-1")

	h.SetEnabled(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
