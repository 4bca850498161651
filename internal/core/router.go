package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagebell/pagebell/internal/model"
)

// Routing errors. Both are permanent: retrying without a config change
// cannot succeed.
var (
	ErrNoTeam   = errors.New("no team resolvable for alert")
	ErrNoPolicy = errors.New("no active escalation policy with levels")
)

// RouteResult is the routing decision for a new incident.
type RouteResult struct {
	TeamID             string  `json:"team_id"`
	EscalationPolicyID string  `json:"escalation_policy_id"`
	AssignedUserID     *string `json:"assigned_user_id,omitempty"`
	ServiceID          *string `json:"service_id,omitempty"`
}

// Route resolves (team, escalation policy, first-level target) from
// alert metadata. Priority: metadata routing key -> integration
// default service -> technical tag on the metadata service name. Runs
// against the caller's transaction so routing participates in the
// dedupe isolation.
func Route(ctx context.Context, q DB, alert *model.Alert, defaultServiceID *string, at time.Time) (*RouteResult, error) {
	var meta map[string]any
	if len(alert.Metadata) > 0 {
		_ = json.Unmarshal(alert.Metadata, &meta)
	}

	if key := metaStr(meta, "routing_key", "routingKey"); key != "" {
		svc, err := serviceByRoutingKey(ctx, q, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if svc != nil && svc.Routable() {
			return routeViaService(ctx, q, svc, at)
		}
	}

	if defaultServiceID != nil {
		svc, err := serviceByID(ctx, q, *defaultServiceID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if svc != nil && svc.Routable() {
			return routeViaService(ctx, q, svc, at)
		}
	}

	if name := metaStr(meta, "service", "service_name"); name != "" {
		var teamID string
		err := q.QueryRow(ctx,
			`SELECT team_id FROM technical_tags WHERE name = $1`, name).Scan(&teamID)
		if err == nil {
			return routeViaTeam(ctx, q, teamID, nil, at)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lookup technical tag: %w", classify(err))
		}
	}

	return nil, ErrNoTeam
}

// routeViaService prefers the service's own policy, then the team's
// default active policy.
func routeViaService(ctx context.Context, q DB, svc *model.Service, at time.Time) (*RouteResult, error) {
	if svc.EscalationPolicyID != nil {
		policy, err := policyIfUsable(ctx, q, *svc.EscalationPolicyID)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			return finishRoute(ctx, q, svc.TeamID, policy, &svc.ID, at)
		}
	}
	return routeViaTeam(ctx, q, svc.TeamID, &svc.ID, at)
}

func routeViaTeam(ctx context.Context, q DB, teamID string, serviceID *string, at time.Time) (*RouteResult, error) {
	var policyID string
	err := q.QueryRow(ctx,
		`SELECT id FROM escalation_policies WHERE team_id = $1 AND is_active
		 ORDER BY created_at ASC LIMIT 1`, teamID).Scan(&policyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("team %s: %w", teamID, ErrNoPolicy)
		}
		return nil, fmt.Errorf("lookup team policy: %w", classify(err))
	}

	policy, err := policyIfUsable(ctx, q, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrNoPolicy)
	}
	return finishRoute(ctx, q, teamID, policy, serviceID, at)
}

func finishRoute(ctx context.Context, q DB, teamID string, policy *model.EscalationPolicy, serviceID *string, at time.Time) (*RouteResult, error) {
	result := &RouteResult{
		TeamID:             teamID,
		EscalationPolicyID: policy.ID,
		ServiceID:          serviceID,
	}

	// The first level's target becomes the initial assignee. A target
	// that cannot be resolved right now is not fatal; escalation will
	// retry level by level.
	if first := policy.Level(1); first != nil {
		userID, err := ResolveLevelTarget(ctx, q, first, teamID, at)
		if err == nil && userID != "" {
			result.AssignedUserID = &userID
		}
	}
	return result, nil
}

// policyIfUsable returns the policy when it is active and has at least
// one level, nil otherwise.
func policyIfUsable(ctx context.Context, q DB, policyID string) (*model.EscalationPolicy, error) {
	policy, err := loadPolicy(ctx, q, policyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !policy.IsActive || len(policy.Levels) == 0 {
		return nil, nil
	}
	return policy, nil
}

func loadPolicy(ctx context.Context, q DB, id string) (*model.EscalationPolicy, error) {
	var p model.EscalationPolicy
	err := q.QueryRow(ctx,
		`SELECT id, team_id, name, repeat_count, is_active, created_at, updated_at
		 FROM escalation_policies WHERE id = $1`, id,
	).Scan(&p.ID, &p.TeamID, &p.Name, &p.RepeatCount, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", classify(err))
	}

	rows, err := q.Query(ctx,
		`SELECT id, policy_id, level_number, target_type, target_id, timeout_minutes
		 FROM escalation_levels WHERE policy_id = $1 ORDER BY level_number ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("load policy levels: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		var l model.EscalationLevel
		if err := rows.Scan(&l.ID, &l.PolicyID, &l.LevelNumber, &l.TargetType, &l.TargetID, &l.TimeoutMinutes); err != nil {
			return nil, fmt.Errorf("scan policy level: %w", err)
		}
		p.Levels = append(p.Levels, l)
	}
	return &p, rows.Err()
}

func serviceByRoutingKey(ctx context.Context, q DB, key string) (*model.Service, error) {
	return scanService(q.QueryRow(ctx,
		`SELECT id, team_id, name, routing_key, escalation_policy_id, status, created_at, updated_at
		 FROM services WHERE routing_key = $1`, key))
}

func serviceByID(ctx context.Context, q DB, id string) (*model.Service, error) {
	return scanService(q.QueryRow(ctx,
		`SELECT id, team_id, name, routing_key, escalation_policy_id, status, created_at, updated_at
		 FROM services WHERE id = $1`, id))
}

func scanService(row pgx.Row) (*model.Service, error) {
	var svc model.Service
	err := row.Scan(&svc.ID, &svc.TeamID, &svc.Name, &svc.RoutingKey,
		&svc.EscalationPolicyID, &svc.Status, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", classify(err))
	}
	return &svc, nil
}

func metaStr(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
