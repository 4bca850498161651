package core

import (
	"context"
	"fmt"
	"time"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

type PolicyService struct {
	db DB
}

func NewPolicyService(db DB) *PolicyService {
	return &PolicyService{db: db}
}

// Create persists a policy with its ordered levels. Level numbers must
// be 1..N contiguous; timeouts are clamped to [1, 180] minutes.
func (s *PolicyService) Create(ctx context.Context, p *model.EscalationPolicy) error {
	if len(p.Levels) == 0 {
		return fmt.Errorf("%w: policy requires at least one level", ErrValidation)
	}
	for i := range p.Levels {
		if p.Levels[i].LevelNumber != i+1 {
			return fmt.Errorf("%w: levels must be numbered 1..N without gaps", ErrValidation)
		}
		if p.Levels[i].TimeoutMinutes < 1 {
			p.Levels[i].TimeoutMinutes = 1
		}
		if p.Levels[i].TimeoutMinutes > 180 {
			p.Levels[i].TimeoutMinutes = 180
		}
	}
	if p.RepeatCount < 1 {
		p.RepeatCount = 1
	}
	if p.RepeatCount > 10 {
		p.RepeatCount = 10
	}

	p.ID = platform.NewName("ep")
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO escalation_policies (id, team_id, name, repeat_count, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.TeamID, p.Name, p.RepeatCount, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create policy: %w", classify(err))
	}

	for i := range p.Levels {
		l := &p.Levels[i]
		l.ID = platform.NewID()
		l.PolicyID = p.ID
		_, err := s.db.Exec(ctx,
			`INSERT INTO escalation_levels (id, policy_id, level_number, target_type, target_id, timeout_minutes)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			l.ID, l.PolicyID, l.LevelNumber, l.TargetType, l.TargetID, l.TimeoutMinutes,
		)
		if err != nil {
			return fmt.Errorf("create policy level %d: %w", l.LevelNumber, classify(err))
		}
	}
	return nil
}

func (s *PolicyService) GetByID(ctx context.Context, id string) (*model.EscalationPolicy, error) {
	return loadPolicy(ctx, s.db, id)
}

func (s *PolicyService) ListByTeam(ctx context.Context, teamID string) ([]model.EscalationPolicy, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM escalation_policies WHERE team_id = $1 ORDER BY created_at ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", classify(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan policy id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	policies := make([]model.EscalationPolicy, 0, len(ids))
	for _, id := range ids {
		p, err := loadPolicy(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, nil
}
