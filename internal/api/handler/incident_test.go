package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newIncidentHandler() *Incident {
	return NewIncident(nil, nil, nil, nil, testLogger())
}

// --- Acknowledge ---

func TestIncidentAcknowledge_InvalidJSON(t *testing.T) {
	h := newIncidentHandler()
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/incidents/inc-1/acknowledge", "{bad")
	r = withChiURLParam(r, "id", "inc-1")

	h.Acknowledge(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestIncidentAcknowledge_MissingUser(t *testing.T) {
	h := newIncidentHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/incidents/inc-1/acknowledge", map[string]any{})
	r = withChiURLParam(r, "id", "inc-1")

	h.Acknowledge(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

// --- AddNote ---

func TestIncidentAddNote_MissingDetail(t *testing.T) {
	h := newIncidentHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/incidents/inc-1/notes", map[string]any{})
	r = withChiURLParam(r, "id", "inc-1")

	h.AddNote(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}
