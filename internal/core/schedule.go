package core

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

type ScheduleService struct {
	db DB
}

func NewScheduleService(db DB) *ScheduleService {
	return &ScheduleService{db: db}
}

// Create validates the timezone and recurrence rule before persisting:
// a schedule that cannot be evaluated must never enter the store.
func (s *ScheduleService) Create(ctx context.Context, sched *model.Schedule) error {
	if err := validateRotation(sched.Timezone, sched.RecurrenceRule, sched.RotationUsers); err != nil {
		return err
	}

	sched.ID = platform.NewName("sch")
	now := time.Now()
	sched.CreatedAt = now
	sched.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO schedules (id, team_id, name, timezone, start_date, recurrence_rule, rotation_users, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sched.ID, sched.TeamID, sched.Name, sched.Timezone, sched.StartDate,
		sched.RecurrenceRule, sched.RotationUsers, sched.IsActive, sched.CreatedAt, sched.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create schedule: %w", classify(err))
	}
	return nil
}

func (s *ScheduleService) GetByID(ctx context.Context, id string) (*model.Schedule, error) {
	var sched model.Schedule
	err := s.db.QueryRow(ctx,
		`SELECT id, team_id, name, timezone, start_date, recurrence_rule, rotation_users, is_active, created_at, updated_at
		 FROM schedules WHERE id = $1`, id,
	).Scan(&sched.ID, &sched.TeamID, &sched.Name, &sched.Timezone, &sched.StartDate,
		&sched.RecurrenceRule, &sched.RotationUsers, &sched.IsActive, &sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", classify(err))
	}
	return &sched, nil
}

func (s *ScheduleService) ListByTeam(ctx context.Context, teamID string) ([]model.Schedule, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, team_id, name, timezone, start_date, recurrence_rule, rotation_users, is_active, created_at, updated_at
		 FROM schedules WHERE team_id = $1 ORDER BY created_at ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", classify(err))
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		var sched model.Schedule
		if err := rows.Scan(&sched.ID, &sched.TeamID, &sched.Name, &sched.Timezone, &sched.StartDate,
			&sched.RecurrenceRule, &sched.RotationUsers, &sched.IsActive, &sched.CreatedAt, &sched.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// AddLayer appends a prioritized rotation layer.
func (s *ScheduleService) AddLayer(ctx context.Context, l *model.ScheduleLayer) error {
	if err := validateRotation(l.Timezone, l.RecurrenceRule, l.RotationUsers); err != nil {
		return err
	}
	l.ID = platform.NewID()
	l.CreatedAt = time.Now()
	restrictions, err := l.Restrictions.MarshalRestrictions()
	if err != nil {
		return fmt.Errorf("encode restrictions: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO schedule_layers (id, schedule_id, priority, timezone, start_date, recurrence_rule, rotation_users, restrictions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.ScheduleID, l.Priority, l.Timezone, l.StartDate,
		l.RecurrenceRule, l.RotationUsers, restrictions, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add schedule layer: %w", classify(err))
	}
	return nil
}

// AddOverride records a manual takeover for [StartTime, EndTime).
func (s *ScheduleService) AddOverride(ctx context.Context, o *model.ScheduleOverride) error {
	if !o.EndTime.After(o.StartTime) {
		return fmt.Errorf("%w: override end must be after start", ErrValidation)
	}
	o.ID = platform.NewID()
	o.CreatedAt = time.Now()
	_, err := s.db.Exec(ctx,
		`INSERT INTO schedule_overrides (id, schedule_id, user_id, start_time, end_time, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.ScheduleID, o.UserID, o.StartTime, o.EndTime, o.Reason, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add schedule override: %w", classify(err))
	}
	return nil
}

func validateRotation(tz, rule string, users []string) error {
	if len(users) == 0 {
		return fmt.Errorf("%w: rotation requires at least one user", ErrValidation)
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrValidation, tz)
	}
	if _, err := rrule.StrToROption(rule); err != nil {
		return fmt.Errorf("%w: invalid recurrence rule: %v", ErrValidation, err)
	}
	return nil
}
