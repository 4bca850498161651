package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/oncall"
)

// OnCallService loads schedule aggregates from the store and delegates
// the pure shift math to the oncall resolver.
type OnCallService struct {
	db DB
}

func NewOnCallService(db DB) *OnCallService {
	return &OnCallService{db: db}
}

// OnCallResult identifies the current responder for a schedule query.
type OnCallResult struct {
	UserID     string    `json:"user_id"`
	Source     string    `json:"source"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	ShiftStart time.Time `json:"shift_start"`
	ShiftEnd   time.Time `json:"shift_end"`
}

// CurrentOnCall computes the on-call user for a schedule at the
// instant. Deterministic: same store state + same instant = same
// answer.
func (s *OnCallService) CurrentOnCall(ctx context.Context, scheduleID string, at time.Time) (*OnCallResult, error) {
	return currentOnCall(ctx, s.db, scheduleID, at)
}

// CurrentOnCallForTeam resolves via the team's first active schedule.
func (s *OnCallService) CurrentOnCallForTeam(ctx context.Context, teamID string, at time.Time) (*OnCallResult, error) {
	var scheduleID string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM schedules WHERE team_id = $1 AND is_active ORDER BY created_at ASC LIMIT 1`,
		teamID).Scan(&scheduleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup team schedule: %w", classify(err))
	}
	return currentOnCall(ctx, s.db, scheduleID, at)
}

func currentOnCall(ctx context.Context, q DB, scheduleID string, at time.Time) (*OnCallResult, error) {
	query, err := loadScheduleQuery(ctx, q, scheduleID)
	if err != nil {
		return nil, err
	}
	if !query.Schedule.IsActive {
		return nil, nil
	}

	res, err := oncall.Resolve(*query, at)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return &OnCallResult{
		UserID:     res.UserID,
		Source:     res.Source,
		ScheduleID: scheduleID,
		ShiftStart: res.ShiftStart,
		ShiftEnd:   res.ShiftEnd,
	}, nil
}

// ResolveLevelTarget turns one escalation level into a concrete user
// at the instant. Schedule targets additionally require the resolved
// user to still be an active, pageable team member, guarding against
// stale rotations.
func ResolveLevelTarget(ctx context.Context, q DB, level *model.EscalationLevel, teamID string, at time.Time) (string, error) {
	switch level.TargetType {
	case model.TargetUser:
		if level.TargetID == nil {
			return "", fmt.Errorf("%w: user level without target", ErrValidation)
		}
		var active bool
		err := q.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1`, *level.TargetID).Scan(&active)
		if err != nil {
			return "", fmt.Errorf("load target user: %w", classify(err))
		}
		if !active {
			return "", nil
		}
		return *level.TargetID, nil

	case model.TargetSchedule:
		if level.TargetID == nil {
			return "", fmt.Errorf("%w: schedule level without target", ErrValidation)
		}
		res, err := currentOnCall(ctx, q, *level.TargetID, at)
		if err != nil || res == nil {
			return "", err
		}
		eligible, err := isPageableMember(ctx, q, teamID, res.UserID)
		if err != nil || !eligible {
			return "", err
		}
		return res.UserID, nil

	case model.TargetEntireTeam:
		var userID string
		err := q.QueryRow(ctx,
			`SELECT tm.user_id FROM team_members tm
			 JOIN users u ON u.id = tm.user_id
			 WHERE tm.team_id = $1 AND tm.role IN ($2, $3) AND u.is_active
			 ORDER BY tm.joined_at ASC LIMIT 1`,
			teamID, model.RoleResponder, model.RoleTeamAdmin).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", nil
			}
			return "", fmt.Errorf("lookup team responder: %w", classify(err))
		}
		return userID, nil

	default:
		return "", fmt.Errorf("%w: unknown target type %q", ErrValidation, level.TargetType)
	}
}

func isPageableMember(ctx context.Context, q DB, teamID, userID string) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM team_members tm JOIN users u ON u.id = tm.user_id
		   WHERE tm.team_id = $1 AND tm.user_id = $2
		     AND tm.role IN ($3, $4) AND u.is_active)`,
		teamID, userID, model.RoleResponder, model.RoleTeamAdmin).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", classify(err))
	}
	return ok, nil
}

func loadScheduleQuery(ctx context.Context, q DB, scheduleID string) (*oncall.Query, error) {
	var sched model.Schedule
	err := q.QueryRow(ctx,
		`SELECT id, team_id, name, timezone, start_date, recurrence_rule, rotation_users, is_active, created_at, updated_at
		 FROM schedules WHERE id = $1`, scheduleID,
	).Scan(&sched.ID, &sched.TeamID, &sched.Name, &sched.Timezone, &sched.StartDate,
		&sched.RecurrenceRule, &sched.RotationUsers, &sched.IsActive, &sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", classify(err))
	}

	layerRows, err := q.Query(ctx,
		`SELECT id, schedule_id, priority, timezone, start_date, recurrence_rule, rotation_users, restrictions, created_at
		 FROM schedule_layers WHERE schedule_id = $1 ORDER BY priority DESC`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load schedule layers: %w", classify(err))
	}
	defer layerRows.Close()

	var layers []model.ScheduleLayer
	for layerRows.Next() {
		var l model.ScheduleLayer
		if err := layerRows.Scan(&l.ID, &l.ScheduleID, &l.Priority, &l.Timezone, &l.StartDate,
			&l.RecurrenceRule, &l.RotationUsers, &l.Restrictions, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule layer: %w", err)
		}
		layers = append(layers, l)
	}
	if err := layerRows.Err(); err != nil {
		return nil, err
	}

	ovrRows, err := q.Query(ctx,
		`SELECT id, schedule_id, user_id, start_time, end_time, reason, created_at
		 FROM schedule_overrides WHERE schedule_id = $1 ORDER BY start_time ASC`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load schedule overrides: %w", classify(err))
	}
	defer ovrRows.Close()

	var overrides []model.ScheduleOverride
	for ovrRows.Next() {
		var o model.ScheduleOverride
		if err := ovrRows.Scan(&o.ID, &o.ScheduleID, &o.UserID, &o.StartTime, &o.EndTime, &o.Reason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := ovrRows.Err(); err != nil {
		return nil, err
	}

	return &oncall.Query{Schedule: &sched, Layers: layers, Overrides: overrides}, nil
}
