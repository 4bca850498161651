package oncall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagebell/pagebell/internal/model"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

// Weekly rotation [u1, u2] in America/New_York starting Monday
// 2025-03-03 09:00 local. US DST begins 2025-03-09.
func weeklySchedule(t *testing.T) *model.Schedule {
	t.Helper()
	ny := mustLoc(t, "America/New_York")
	return &model.Schedule{
		ID:             "sched-1",
		Timezone:       "America/New_York",
		StartDate:      time.Date(2025, 3, 3, 9, 0, 0, 0, ny),
		RecurrenceRule: "FREQ=WEEKLY",
		RotationUsers:  []string{"u1", "u2"},
		IsActive:       true,
	}
}

func TestResolveFirstShift(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	res, err := Resolve(Query{Schedule: weeklySchedule(t)}, time.Date(2025, 3, 5, 12, 0, 0, 0, ny))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, SourceSchedule, res.Source)
	assert.True(t, res.ShiftStart.Equal(time.Date(2025, 3, 3, 9, 0, 0, 0, ny)))
	assert.True(t, res.ShiftEnd.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, ny)))
}

func TestResolveAcrossSpringForward(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	// Sunday 2025-03-09 09:00 EDT is post-transition but still inside
	// the first weekly shift.
	res, err := Resolve(Query{Schedule: weeklySchedule(t)}, time.Date(2025, 3, 9, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "u1", res.UserID)

	// After the Monday 09:00 handoff the second user is on call; the
	// handoff happened at the correct local hour despite the missing
	// 02:00-03:00 hour a day earlier.
	res, err = Resolve(Query{Schedule: weeklySchedule(t)}, time.Date(2025, 3, 10, 10, 0, 0, 0, ny))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "u2", res.UserID)
	assert.Equal(t, 9, res.ShiftStart.In(ny).Hour(), "handoff stays at 09:00 local after DST")
}

func TestResolveSpringForwardNonexistentTime(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	// A daily 02:30 handoff: 2025-03-09 has no 02:30 local, the
	// occurrence advances to 03:30.
	sched := &model.Schedule{
		ID:             "sched-dst",
		Timezone:       "America/New_York",
		StartDate:      time.Date(2025, 3, 7, 2, 30, 0, 0, ny),
		RecurrenceRule: "FREQ=DAILY",
		RotationUsers:  []string{"a", "b", "c"},
	}

	res, err := Resolve(Query{Schedule: sched}, time.Date(2025, 3, 9, 12, 0, 0, 0, ny))
	require.NoError(t, err)
	require.NotNil(t, res)

	local := res.ShiftStart.In(ny)
	assert.Equal(t, 9, local.Day())
	assert.Equal(t, 3, local.Hour(), "02:30 does not exist on 2025-03-09; shift starts 03:30")
	assert.Equal(t, 30, local.Minute())
	assert.Equal(t, "c", res.UserID, "no handoff is skipped: shifts 7th, 8th, 9th")
}

func TestResolveOverrideDominates(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	q := Query{
		Schedule: weeklySchedule(t),
		Overrides: []model.ScheduleOverride{{
			ID:         "ovr-1",
			UserID:     "u3",
			StartTime:  time.Date(2025, 3, 9, 8, 0, 0, 0, ny),
			EndTime:    time.Date(2025, 3, 9, 10, 0, 0, 0, ny),
		}},
	}

	res, err := Resolve(q, time.Date(2025, 3, 9, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "u3", res.UserID)
	assert.Equal(t, SourceOverride, res.Source)

	// End is exclusive.
	res, err = Resolve(q, time.Date(2025, 3, 9, 10, 0, 0, 0, ny))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "u1", res.UserID)
}

func TestResolveLayerPriorityAndRestrictions(t *testing.T) {
	utc := time.UTC
	base := weeklySchedule(t)

	weekdayOnly := model.ScheduleLayer{
		ID:             "layer-weekday",
		Priority:       10,
		Timezone:       "UTC",
		StartDate:      time.Date(2025, 3, 3, 9, 0, 0, 0, utc),
		RecurrenceRule: "FREQ=DAILY",
		RotationUsers:  []string{"day1", "day2"},
		Restrictions:   &model.LayerRestriction{DaysOfWeek: []int{1, 2, 3, 4, 5}},
	}
	fallback := model.ScheduleLayer{
		ID:             "layer-all",
		Priority:       1,
		Timezone:       "UTC",
		StartDate:      time.Date(2025, 3, 3, 9, 0, 0, 0, utc),
		RecurrenceRule: "FREQ=DAILY",
		RotationUsers:  []string{"any1"},
	}
	q := Query{Schedule: base, Layers: []model.ScheduleLayer{fallback, weekdayOnly}}

	// Wednesday: the high priority weekday layer wins.
	res, err := Resolve(q, time.Date(2025, 3, 5, 12, 0, 0, 0, utc))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "layer-weekday", res.LayerID)
	assert.Equal(t, "day1", res.UserID, "third daily shift since start: day1, day2, day1")

	// Saturday: restriction excludes the weekday layer, fallback layer applies.
	res, err = Resolve(q, time.Date(2025, 3, 8, 12, 0, 0, 0, utc))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "layer-all", res.LayerID)
	assert.Equal(t, "any1", res.UserID)
}

func TestResolveBeforeStart(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	res, err := Resolve(Query{Schedule: weeklySchedule(t)}, time.Date(2025, 3, 1, 12, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestResolveDeterministic(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	at := time.Date(2025, 6, 17, 15, 0, 0, 0, ny)

	a, err := Resolve(Query{Schedule: weeklySchedule(t)}, at)
	require.NoError(t, err)
	b, err := Resolve(Query{Schedule: weeklySchedule(t)}, at)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
