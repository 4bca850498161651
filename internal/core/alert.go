package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

type AlertService struct {
	db DB
}

func NewAlertService(db DB) *AlertService {
	return &AlertService{db: db}
}

// Create persists a normalized alert. When the integration already has
// an alert with the same external id, the existing alert is returned
// and created=false, making re-deliveries idempotent at the store even
// when the cache has forgotten the idempotency key.
func (s *AlertService) Create(ctx context.Context, a *model.Alert) (bool, error) {
	if a.ExternalID != nil {
		existing, err := s.FindByExternalID(ctx, a.IntegrationID, *a.ExternalID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return false, err
		}
		if existing != nil {
			*a = *existing
			return false, nil
		}
	}

	if a.ID == "" {
		a.ID = platform.NewName("alr")
	}
	a.Status = model.AlertOpen
	if a.ReceivedAt.IsZero() {
		a.ReceivedAt = time.Now()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO alerts (id, integration_id, title, severity, status, fingerprint, metadata, external_id, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.IntegrationID, a.Title, a.Severity, a.Status, a.Fingerprint, a.Metadata, a.ExternalID, a.ReceivedAt,
	)
	if err != nil {
		err = classify(err)
		// Concurrent insert of the same external id: fetch the winner.
		if errors.Is(err, ErrUnique) && a.ExternalID != nil {
			existing, ferr := s.FindByExternalID(ctx, a.IntegrationID, *a.ExternalID)
			if ferr == nil {
				*a = *existing
				return false, nil
			}
		}
		return false, fmt.Errorf("create alert: %w", err)
	}
	return true, nil
}

func (s *AlertService) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	return s.scanAlert(s.db.QueryRow(ctx,
		`SELECT id, integration_id, title, severity, status, fingerprint, metadata, external_id, received_at, incident_id
		 FROM alerts WHERE id = $1`, id))
}

func (s *AlertService) FindByExternalID(ctx context.Context, integrationID, externalID string) (*model.Alert, error) {
	return s.scanAlert(s.db.QueryRow(ctx,
		`SELECT id, integration_id, title, severity, status, fingerprint, metadata, external_id, received_at, incident_id
		 FROM alerts WHERE integration_id = $1 AND external_id = $2`, integrationID, externalID))
}

func (s *AlertService) scanAlert(row pgx.Row) (*model.Alert, error) {
	var a model.Alert
	err := row.Scan(&a.ID, &a.IntegrationID, &a.Title, &a.Severity, &a.Status,
		&a.Fingerprint, &a.Metadata, &a.ExternalID, &a.ReceivedAt, &a.IncidentID)
	if err != nil {
		return nil, fmt.Errorf("load alert: %w", classify(err))
	}
	return &a, nil
}

// ListByIncident returns all alerts merged into an incident.
func (s *AlertService) ListByIncident(ctx context.Context, incidentID string) ([]model.Alert, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, integration_id, title, severity, status, fingerprint, metadata, external_id, received_at, incident_id
		 FROM alerts WHERE incident_id = $1 ORDER BY received_at ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", classify(err))
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.IntegrationID, &a.Title, &a.Severity, &a.Status,
			&a.Fingerprint, &a.Metadata, &a.ExternalID, &a.ReceivedAt, &a.IncidentID); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ResolveStale marks OPEN alerts older than the cutoff RESOLVED and
// returns their ids. Used by the auto-resolve cron.
func (s *AlertService) ResolveStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE alerts SET status = $1 WHERE status = $2 AND received_at < $3 RETURNING id`,
		model.AlertResolved, model.AlertOpen, cutoff)
	if err != nil {
		return nil, fmt.Errorf("resolve stale alerts: %w", classify(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan resolved alert id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListDeliveriesForArchive returns webhook delivery rows older than
// the cutoff, oldest first, for the retention cron.
func (s *AlertService) ListDeliveriesForArchive(ctx context.Context, cutoff time.Time, limit int) ([]model.WebhookDelivery, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, integration_id, status_code, latency_ms, body_bytes, error, created_at
		 FROM webhook_deliveries WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries for archive: %w", classify(err))
	}
	defer rows.Close()

	var out []model.WebhookDelivery
	for rows.Next() {
		var d model.WebhookDelivery
		if err := rows.Scan(&d.ID, &d.IntegrationID, &d.StatusCode, &d.LatencyMs,
			&d.BodyBytes, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDeliveries prunes archived webhook delivery rows.
func (s *AlertService) DeleteDeliveries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM webhook_deliveries WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete deliveries: %w", classify(err))
	}
	return nil
}

// RecordDelivery appends a webhook delivery audit row. Best-effort:
// a failed audit write never fails the ingest path.
func (s *AlertService) RecordDelivery(ctx context.Context, d *model.WebhookDelivery) {
	d.ID = platform.NewID()
	d.CreatedAt = time.Now()
	_, _ = s.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (id, integration_id, status_code, latency_ms, body_bytes, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.IntegrationID, d.StatusCode, d.LatencyMs, d.BodyBytes, d.Error, d.CreatedAt,
	)
}
