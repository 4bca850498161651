package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

const incidentColumns = `id, fingerprint, status, priority, team_id, escalation_policy_id,
	service_id, assigned_user_id, title, current_level, current_repeat, alert_count,
	created_at, acknowledged_at, resolved_at, updated_at`

type IncidentService struct {
	db   DB
	pool TxBeginner
}

func NewIncidentService(db DB, pool TxBeginner) *IncidentService {
	return &IncidentService{db: db, pool: pool}
}

// DedupeResult is the outcome of deduplicating one alert.
type DedupeResult struct {
	IncidentID  string `json:"incident_id"`
	IsDuplicate bool   `json:"is_duplicate"`
}

// Deduplicate attaches the alert to an open incident sharing its
// fingerprint inside the merge window, or creates a new incident
// routed from the alert metadata. The whole decision runs in one
// serializable transaction so two concurrent alerts for the same
// fingerprint can never both create an incident. Serialization
// conflicts retry with exponential backoff before surfacing as
// ErrConflict.
func (s *IncidentService) Deduplicate(ctx context.Context, alertID string) (*DedupeResult, error) {
	var result *DedupeResult

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin dedupe tx: %w", err)
		}
		defer tx.Rollback(ctx)

		res, err := s.dedupeTx(ctx, tx, alertID, time.Now())
		if err == nil {
			err = classify(tx.Commit(ctx))
		}
		if errors.Is(err, ErrSerialization) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSerialization) {
			return nil, fmt.Errorf("%w: dedupe retries exhausted: %w", ErrConflict, err)
		}
		return nil, err
	}
	return result, nil
}

// dedupeTx is the transactional body. q is the open transaction.
func (s *IncidentService) dedupeTx(ctx context.Context, q DB, alertID string, now time.Time) (*DedupeResult, error) {
	var alert model.Alert
	err := q.QueryRow(ctx,
		`SELECT id, integration_id, title, severity, fingerprint, metadata, external_id, received_at, incident_id
		 FROM alerts WHERE id = $1`, alertID,
	).Scan(&alert.ID, &alert.IntegrationID, &alert.Title, &alert.Severity, &alert.Fingerprint,
		&alert.Metadata, &alert.ExternalID, &alert.ReceivedAt, &alert.IncidentID)
	if err != nil {
		return nil, fmt.Errorf("load alert %s: %w", alertID, classify(err))
	}

	// Re-delivered job after a previous successful run.
	if alert.IncidentID != nil {
		return &DedupeResult{IncidentID: *alert.IncidentID, IsDuplicate: true}, nil
	}

	var integ model.Integration
	err = q.QueryRow(ctx,
		`SELECT id, provider, default_service_id, dedup_window_minutes FROM integrations WHERE id = $1`,
		alert.IntegrationID,
	).Scan(&integ.ID, &integ.Provider, &integ.DefaultServiceID, &integ.DedupWindowMinutes)
	if err != nil {
		return nil, fmt.Errorf("load integration: %w", classify(err))
	}

	var incidentID string
	err = q.QueryRow(ctx,
		`SELECT id FROM incidents
		 WHERE fingerprint = $1 AND status IN ('open', 'acknowledged') AND created_at >= $2
		 ORDER BY created_at DESC LIMIT 1`,
		alert.Fingerprint, now.Add(-integ.DedupWindow()),
	).Scan(&incidentID)
	if err == nil {
		if _, err := q.Exec(ctx,
			`UPDATE alerts SET incident_id = $1 WHERE id = $2`, incidentID, alert.ID); err != nil {
			return nil, fmt.Errorf("link alert: %w", classify(err))
		}
		if _, err := q.Exec(ctx,
			`UPDATE incidents SET alert_count = alert_count + 1, updated_at = $1 WHERE id = $2`,
			now, incidentID); err != nil {
			return nil, fmt.Errorf("bump alert count: %w", classify(err))
		}
		insertIncidentEvent(ctx, q, incidentID, "system:dedupe", "alert_merged", alert.Title)
		return &DedupeResult{IncidentID: incidentID, IsDuplicate: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("select open incident: %w", classify(err))
	}

	route, err := Route(ctx, q, &alert, integ.DefaultServiceID, now)
	if err != nil {
		return nil, err
	}

	incidentID = platform.NewName("inc")
	_, err = q.Exec(ctx,
		`INSERT INTO incidents (id, fingerprint, status, priority, team_id, escalation_policy_id,
		                        service_id, assigned_user_id, title, current_level, current_repeat,
		                        alert_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, 1, 1, $10, $10)`,
		incidentID, alert.Fingerprint, model.IncidentOpen, alert.Severity,
		route.TeamID, route.EscalationPolicyID, route.ServiceID, route.AssignedUserID,
		alert.Title, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", classify(err))
	}

	if _, err := q.Exec(ctx,
		`UPDATE alerts SET incident_id = $1 WHERE id = $2`, incidentID, alert.ID); err != nil {
		return nil, fmt.Errorf("link alert: %w", classify(err))
	}
	insertIncidentEvent(ctx, q, incidentID, "system:dedupe", "created", alert.Title)

	return &DedupeResult{IncidentID: incidentID, IsDuplicate: false}, nil
}

// GetByID returns an incident by ID.
func (s *IncidentService) GetByID(ctx context.Context, id string) (*model.Incident, error) {
	var inc model.Incident
	err := s.db.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id,
	).Scan(&inc.ID, &inc.Fingerprint, &inc.Status, &inc.Priority, &inc.TeamID,
		&inc.EscalationPolicyID, &inc.ServiceID, &inc.AssignedUserID, &inc.Title,
		&inc.CurrentLevel, &inc.CurrentRepeat, &inc.AlertCount,
		&inc.CreatedAt, &inc.AcknowledgedAt, &inc.ResolvedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", classify(err))
	}
	return &inc, nil
}

// Acknowledge transitions OPEN -> ACKNOWLEDGED and assigns the acking
// user. Concurrent acks are serialized by the conditional update; the
// loser returns false and is a no-op.
func (s *IncidentService) Acknowledge(ctx context.Context, id, userID string) (bool, error) {
	now := time.Now()
	tag, err := s.db.Exec(ctx,
		`UPDATE incidents SET status = $1, acknowledged_at = $2, assigned_user_id = $3, updated_at = $2
		 WHERE id = $4 AND status = $5`,
		model.IncidentAcknowledged, now, userID, id, model.IncidentOpen,
	)
	if err != nil {
		return false, fmt.Errorf("acknowledge incident: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	insertIncidentEvent(ctx, s.db, id, "user:"+userID, "acknowledged", "")
	return true, nil
}

// Resolve transitions OPEN or ACKNOWLEDGED -> RESOLVED.
func (s *IncidentService) Resolve(ctx context.Context, id, actor string) (bool, error) {
	now := time.Now()
	tag, err := s.db.Exec(ctx,
		`UPDATE incidents SET status = $1, resolved_at = $2,
		        acknowledged_at = COALESCE(acknowledged_at, $2), updated_at = $2
		 WHERE id = $3 AND status IN ($4, $5)`,
		model.IncidentResolved, now, id, model.IncidentOpen, model.IncidentAcknowledged,
	)
	if err != nil {
		return false, fmt.Errorf("resolve incident: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	insertIncidentEvent(ctx, s.db, id, actor, "resolved", "")
	return true, nil
}

// Close transitions RESOLVED -> CLOSED (terminal).
func (s *IncidentService) Close(ctx context.Context, id, actor string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE incidents SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		model.IncidentClosed, time.Now(), id, model.IncidentResolved,
	)
	if err != nil {
		return false, fmt.Errorf("close incident: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	insertIncidentEvent(ctx, s.db, id, actor, "closed", "")
	return true, nil
}

// AdvanceEscalation moves the incident's escalation cursor, but only
// if it is still OPEN at the expected (level, repeat). A stale timer
// whose cursor no longer matches returns false and must be discarded.
func (s *IncidentService) AdvanceEscalation(ctx context.Context, id string, fromLevel, fromRepeat, toLevel, toRepeat int) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE incidents SET current_level = $1, current_repeat = $2, updated_at = $3
		 WHERE id = $4 AND status = $5 AND current_level = $6 AND current_repeat = $7`,
		toLevel, toRepeat, time.Now(), id, model.IncidentOpen, fromLevel, fromRepeat,
	)
	if err != nil {
		return false, fmt.Errorf("advance escalation: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	insertIncidentEvent(ctx, s.db, id, "system:escalation", "escalated",
		fmt.Sprintf("level %d repeat %d", toLevel, toRepeat))
	return true, nil
}

// ListEvents returns the incident timeline, oldest first.
func (s *IncidentService) ListEvents(ctx context.Context, incidentID string) ([]model.IncidentEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, incident_id, actor, action, detail, metadata, created_at
		 FROM incident_events WHERE incident_id = $1 ORDER BY created_at ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident events: %w", classify(err))
	}
	defer rows.Close()

	var events []model.IncidentEvent
	for rows.Next() {
		var e model.IncidentEvent
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Actor, &e.Action, &e.Detail, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// IncidentFilters narrow List results.
type IncidentFilters struct {
	Status   string
	Priority string
	TeamID   string
}

// List returns incidents with optional filters, newest first,
// cursor-paginated.
func (s *IncidentService) List(ctx context.Context, filters IncidentFilters, limit int, cursor string) ([]model.Incident, bool, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var conditions []string
	var args []any
	argN := 1

	add := func(cond string, v any) {
		conditions = append(conditions, fmt.Sprintf(cond, argN))
		args = append(args, v)
		argN++
	}
	if filters.Status != "" {
		add("status = $%d", filters.Status)
	}
	if filters.Priority != "" {
		add("priority = $%d", filters.Priority)
	}
	if filters.TeamID != "" {
		add("team_id = $%d", filters.TeamID)
	}
	if cursor != "" {
		add("created_at < (SELECT created_at FROM incidents WHERE id = $%d)", cursor)
	}

	if len(conditions) > 0 {
		query += " WHERE " + joinAnd(conditions)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argN)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list incidents: %w", classify(err))
	}
	defer rows.Close()

	var incidents []model.Incident
	for rows.Next() {
		var inc model.Incident
		if err := rows.Scan(&inc.ID, &inc.Fingerprint, &inc.Status, &inc.Priority, &inc.TeamID,
			&inc.EscalationPolicyID, &inc.ServiceID, &inc.AssignedUserID, &inc.Title,
			&inc.CurrentLevel, &inc.CurrentRepeat, &inc.AlertCount,
			&inc.CreatedAt, &inc.AcknowledgedAt, &inc.ResolvedAt, &inc.UpdatedAt); err != nil {
			return nil, false, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(incidents) > limit
	if hasMore {
		incidents = incidents[:limit]
	}
	return incidents, hasMore, nil
}

// RecordEvent appends a timeline row on behalf of a caller outside the
// state machine (escalation notices, workflow actions).
func (s *IncidentService) RecordEvent(ctx context.Context, incidentID, actor, action, detail string) {
	insertIncidentEvent(ctx, s.db, incidentID, actor, action, detail)
}

// insertIncidentEvent appends a timeline row; failures are ignored
// because the timeline is best-effort relative to the state change.
func insertIncidentEvent(ctx context.Context, q DB, incidentID, actor, action, detail string) {
	_, _ = q.Exec(ctx,
		`INSERT INTO incident_events (id, incident_id, actor, action, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		platform.NewID(), incidentID, actor, action, detail, time.Now(),
	)
}

func joinAnd(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}
