package model

import (
	"encoding/json"
	"time"
)

// Schedule is a timezone-aware rotating on-call schedule. All
// occurrence math evaluates in the declared timezone so DST
// transitions resolve correctly.
type Schedule struct {
	ID             string    `json:"id" db:"id"`
	TeamID         string    `json:"team_id" db:"team_id"`
	Name           string    `json:"name" db:"name"`
	Timezone       string    `json:"timezone" db:"timezone"`
	StartDate      time.Time `json:"start_date" db:"start_date"`
	RecurrenceRule string    `json:"recurrence_rule" db:"recurrence_rule"`
	RotationUsers  []string  `json:"rotation_users" db:"rotation_users"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ScheduleLayer is one prioritized rotation within a schedule. Higher
// priority wins. Restrictions (e.g. daysOfWeek) limit when the layer
// applies, evaluated in the layer's timezone.
type ScheduleLayer struct {
	ID             string            `json:"id" db:"id"`
	ScheduleID     string            `json:"schedule_id" db:"schedule_id"`
	Priority       int               `json:"priority" db:"priority"`
	Timezone       string            `json:"timezone" db:"timezone"`
	StartDate      time.Time         `json:"start_date" db:"start_date"`
	RecurrenceRule string            `json:"recurrence_rule" db:"recurrence_rule"`
	RotationUsers  []string          `json:"rotation_users" db:"rotation_users"`
	Restrictions   *LayerRestriction `json:"restrictions,omitempty" db:"restrictions"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// LayerRestriction limits a layer to certain local weekdays.
// Weekdays use time.Weekday numbering (Sunday = 0).
type LayerRestriction struct {
	DaysOfWeek []int `json:"daysOfWeek,omitempty"`
}

// Value helpers for the JSONB restrictions column.
func (r *LayerRestriction) MarshalRestrictions() ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// ScheduleOverride assigns a user over [StartTime, EndTime); it always
// dominates layers and the base rotation.
type ScheduleOverride struct {
	ID         string    `json:"id" db:"id"`
	ScheduleID string    `json:"schedule_id" db:"schedule_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	StartTime  time.Time `json:"start_time" db:"start_time"`
	EndTime    time.Time `json:"end_time" db:"end_time"`
	Reason     *string   `json:"reason,omitempty" db:"reason"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Contains reports whether the override covers the instant.
func (o *ScheduleOverride) Contains(at time.Time) bool {
	return !at.Before(o.StartTime) && at.Before(o.EndTime)
}
