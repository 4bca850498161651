package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newScheduleHandler() *Schedule {
	return NewSchedule(nil, nil)
}

// --- Create ---

func TestScheduleCreate_InvalidTimezone(t *testing.T) {
	h := newScheduleHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/schedules", map[string]any{
		"team_id":         "team-1",
		"name":            "primary",
		"timezone":        "Mars/Olympus_Mons",
		"start_date":      time.Now().UTC(),
		"recurrence_rule": "FREQ=WEEKLY",
		"rotation_users":  []string{"usr-1"},
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestScheduleCreate_EmptyRotation(t *testing.T) {
	h := newScheduleHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/schedules", map[string]any{
		"team_id":         "team-1",
		"name":            "primary",
		"timezone":        "Europe/Stockholm",
		"start_date":      time.Now().UTC(),
		"recurrence_rule": "FREQ=WEEKLY",
		"rotation_users":  []string{},
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- OnCall ---

func TestScheduleOnCall_BadInstant(t *testing.T) {
	h := newScheduleHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodGet, "/schedules/sch-1/oncall?at=yesterday", nil)
	r = withChiURLParam(r, "id", "sch-1")

	h.OnCall(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "RFC 3339")
}
