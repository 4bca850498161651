// Package oncall computes the current on-call user for a schedule at
// an instant. Resolve is a pure function of its inputs so results are
// reproducible; all occurrence math runs in the declared timezone of
// the schedule or layer, which keeps DST transitions correct (a
// nonexistent spring-forward local time advances, an ambiguous
// fall-back time resolves to the first occurrence).
package oncall

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/pagebell/pagebell/internal/model"
)

// Result sources.
const (
	SourceOverride = "override"
	SourceLayer    = "layer"
	SourceSchedule = "schedule"
)

// Query carries everything Resolve needs; callers load it from the
// store so the resolver itself stays side-effect free.
type Query struct {
	Schedule  *model.Schedule
	Layers    []model.ScheduleLayer
	Overrides []model.ScheduleOverride
}

// Result identifies who is on call and for which shift window.
type Result struct {
	UserID     string
	Source     string
	LayerID    string
	ShiftStart time.Time
	ShiftEnd   time.Time
}

// Resolve returns the on-call user at the instant, or nil when nobody
// is on call (schedule not started, empty rotation, restricted out).
func Resolve(q Query, at time.Time) (*Result, error) {
	for _, o := range q.Overrides {
		if o.Contains(at) {
			return &Result{
				UserID:     o.UserID,
				Source:     SourceOverride,
				ShiftStart: o.StartTime,
				ShiftEnd:   o.EndTime,
			}, nil
		}
	}

	if len(q.Layers) > 0 {
		layers := make([]model.ScheduleLayer, len(q.Layers))
		copy(layers, q.Layers)
		sort.SliceStable(layers, func(i, j int) bool { return layers[i].Priority > layers[j].Priority })

		for _, layer := range layers {
			res, err := resolveRotation(rotation{
				timezone:  layer.Timezone,
				startDate: layer.StartDate,
				rule:      layer.RecurrenceRule,
				users:     layer.RotationUsers,
			}, layer.Restrictions, at)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %w", layer.ID, err)
			}
			if res != nil {
				res.Source = SourceLayer
				res.LayerID = layer.ID
				return res, nil
			}
		}
		return nil, nil
	}

	res, err := resolveRotation(rotation{
		timezone:  q.Schedule.Timezone,
		startDate: q.Schedule.StartDate,
		rule:      q.Schedule.RecurrenceRule,
		users:     q.Schedule.RotationUsers,
	}, nil, at)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", q.Schedule.ID, err)
	}
	if res != nil {
		res.Source = SourceSchedule
	}
	return res, nil
}

type rotation struct {
	timezone  string
	startDate time.Time
	rule      string
	users     []string
}

func resolveRotation(rot rotation, restr *model.LayerRestriction, at time.Time) (*Result, error) {
	if len(rot.users) == 0 {
		return nil, nil
	}

	loc, err := time.LoadLocation(rot.timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", rot.timezone, err)
	}
	local := at.In(loc)

	if restr != nil && len(restr.DaysOfWeek) > 0 {
		ok := false
		for _, d := range restr.DaysOfWeek {
			if int(local.Weekday()) == d {
				ok = true
				break
			}
		}
		if !ok {
			return nil, nil
		}
	}

	// Occurrence math runs on wall-clock times: the rule iterates in a
	// zone-less frame so a daily 02:30 handoff stays 02:30 across DST,
	// and each occurrence is re-anchored in the location afterwards.
	// Re-anchoring a wall time erased by spring-forward lands past the
	// gap (02:30 becomes 03:30).
	wallStart := toWall(rot.startDate.In(loc))
	rule, err := buildRule(rot.rule, wallStart)
	if err != nil {
		return nil, err
	}

	// All handoffs from the rotation start up to the instant. The
	// current shift began at the last one.
	wallNow := toWall(local)
	occurrences := rule.Between(wallStart.Add(-time.Second), wallNow, true)
	if len(occurrences) == 0 {
		return nil, nil
	}

	shiftIndex := len(occurrences) - 1
	shiftStart := fromWall(occurrences[shiftIndex], loc)

	var shiftEnd time.Time
	if next := rule.After(wallNow, false); !next.IsZero() {
		shiftEnd = fromWall(next, loc)
	} else {
		shiftEnd = shiftStart.Add(nominalPeriod(rule))
	}

	return &Result{
		UserID:     rot.users[shiftIndex%len(rot.users)],
		ShiftStart: shiftStart,
		ShiftEnd:   shiftEnd,
	}, nil
}

// toWall strips the zone: the same clock reading re-read as UTC.
func toWall(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, m, s := t.Clock()
	return time.Date(y, mo, d, h, m, s, t.Nanosecond(), time.UTC)
}

// fromWall re-anchors a wall-clock time in the location. time.Date
// normalizes a nonexistent spring-forward reading forward by the width
// of the gap; an ambiguous fall-back reading takes its first offset.
func fromWall(t time.Time, loc *time.Location) time.Time {
	y, mo, d := t.Date()
	h, m, s := t.Clock()
	return time.Date(y, mo, d, h, m, s, t.Nanosecond(), loc)
}

// buildRule parses a standard RRULE string and anchors it at the
// rotation start in the wall-clock frame.
func buildRule(ruleStr string, dtstart time.Time) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("parse recurrence rule %q: %w", ruleStr, err)
	}
	opt.Dtstart = dtstart
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule %q: %w", ruleStr, err)
	}
	return rule, nil
}

// nominalPeriod approximates a shift length for rules with no further
// occurrences (COUNT/UNTIL exhausted).
func nominalPeriod(rule *rrule.RRule) time.Duration {
	interval := rule.OrigOptions.Interval
	if interval == 0 {
		interval = 1
	}
	var unit time.Duration
	switch rule.OrigOptions.Freq {
	case rrule.HOURLY:
		unit = time.Hour
	case rrule.DAILY:
		unit = 24 * time.Hour
	case rrule.WEEKLY:
		unit = 7 * 24 * time.Hour
	case rrule.MONTHLY:
		unit = 30 * 24 * time.Hour
	default:
		unit = 24 * time.Hour
	}
	return time.Duration(interval) * unit
}
