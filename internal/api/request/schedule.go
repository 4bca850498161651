package request

import (
	"time"

	"github.com/pagebell/pagebell/internal/model"
)

type CreateSchedule struct {
	TeamID         string    `json:"team_id" validate:"required"`
	Name           string    `json:"name" validate:"required,max=120"`
	Timezone       string    `json:"timezone" validate:"required,timezone"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	RecurrenceRule string    `json:"recurrence_rule" validate:"required"`
	RotationUsers  []string  `json:"rotation_users" validate:"required,min=1"`
}

type AddScheduleLayer struct {
	Priority       int                     `json:"priority" validate:"min=0"`
	Timezone       string                  `json:"timezone" validate:"required,timezone"`
	StartDate      time.Time               `json:"start_date" validate:"required"`
	RecurrenceRule string                  `json:"recurrence_rule" validate:"required"`
	RotationUsers  []string                `json:"rotation_users" validate:"required,min=1"`
	Restrictions   *model.LayerRestriction `json:"restrictions,omitempty"`
}

type AddScheduleOverride struct {
	UserID    string    `json:"user_id" validate:"required"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	Reason    *string   `json:"reason,omitempty"`
}
