package core

import (
	"context"
	"fmt"
	"time"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

type ServiceService struct {
	db DB
}

func NewServiceService(db DB) *ServiceService {
	return &ServiceService{db: db}
}

func (s *ServiceService) Create(ctx context.Context, svc *model.Service) error {
	svc.ID = platform.NewName("svc")
	now := time.Now()
	svc.CreatedAt = now
	svc.UpdatedAt = now
	if svc.Status == "" {
		svc.Status = model.ServiceActive
	}
	if svc.RoutingKey == "" {
		svc.RoutingKey = platform.NewName("rk")
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO services (id, team_id, name, routing_key, escalation_policy_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		svc.ID, svc.TeamID, svc.Name, svc.RoutingKey, svc.EscalationPolicyID, svc.Status, svc.CreatedAt, svc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create service: %w", classify(err))
	}
	return nil
}

func (s *ServiceService) GetByID(ctx context.Context, id string) (*model.Service, error) {
	return serviceByID(ctx, s.db, id)
}

func (s *ServiceService) SetStatus(ctx context.Context, id, status string) error {
	switch status {
	case model.ServiceActive, model.ServiceDeprecated, model.ServiceArchived:
	default:
		return fmt.Errorf("%w: unknown service status %q", ErrValidation, status)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE services SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set service status: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ServiceService) ListByTeam(ctx context.Context, teamID string) ([]model.Service, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, team_id, name, routing_key, escalation_policy_id, status, created_at, updated_at
		 FROM services WHERE team_id = $1 ORDER BY name ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", classify(err))
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.TeamID, &svc.Name, &svc.RoutingKey,
			&svc.EscalationPolicyID, &svc.Status, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}
