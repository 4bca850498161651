package core

import (
	"context"
	"fmt"
	"time"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

type TeamService struct {
	db DB
}

func NewTeamService(db DB) *TeamService {
	return &TeamService{db: db}
}

func (s *TeamService) Create(ctx context.Context, t *model.Team) error {
	t.ID = platform.NewName("team")
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.Exec(ctx,
		`INSERT INTO teams (id, name, chat_channel, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.ChatChannel, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create team: %w", classify(err))
	}
	return nil
}

func (s *TeamService) GetByID(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := s.db.QueryRow(ctx,
		`SELECT id, name, chat_channel, created_at, updated_at FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.ChatChannel, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load team: %w", classify(err))
	}
	return &t, nil
}

func (s *TeamService) AddMember(ctx context.Context, m *model.TeamMember) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO team_members (team_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		m.TeamID, m.UserID, m.Role, m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("add team member: %w", classify(err))
	}
	return nil
}

func (s *TeamService) Members(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	rows, err := s.db.Query(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members
		 WHERE team_id = $1 ORDER BY joined_at ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", classify(err))
	}
	defer rows.Close()

	var members []model.TeamMember
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetTechnicalTag binds a service name to a team for tag-based routing.
func (s *TeamService) SetTechnicalTag(ctx context.Context, teamID, name string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO technical_tags (name, team_id)
		 VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET team_id = EXCLUDED.team_id`,
		name, teamID,
	)
	if err != nil {
		return fmt.Errorf("set technical tag: %w", classify(err))
	}
	return nil
}
