package core

import (
	"context"
	"fmt"
	"time"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

const notificationColumns = `id, incident_id, user_id, channel, escalation_level, tier, status,
	provider_id, error, queued_at, sending_at, sent_at, delivered_at, failed_at`

// NotificationLogService owns the per-attempt delivery ledger. All
// status transitions are conditional updates so retries and late
// provider callbacks can never move a log backwards.
type NotificationLogService struct {
	db DB
}

func NewNotificationLogService(db DB) *NotificationLogService {
	return &NotificationLogService{db: db}
}

func (s *NotificationLogService) CreateQueued(ctx context.Context, log *model.NotificationLog) error {
	log.ID = platform.NewName("ntf")
	log.Status = model.NotificationQueued
	if log.QueuedAt.IsZero() {
		log.QueuedAt = time.Now()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO notification_logs (id, incident_id, user_id, channel, escalation_level, tier, status, queued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.IncidentID, log.UserID, log.Channel, log.EscalationLevel, log.Tier, log.Status, log.QueuedAt,
	)
	if err != nil {
		return fmt.Errorf("create notification log: %w", classify(err))
	}
	return nil
}

// MarkSending moves queued -> sending. A log already in sending moves
// again so a retried send attempt can resume it after a partial run;
// anything past sending returns false.
func (s *NotificationLogService) MarkSending(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx,
		`UPDATE notification_logs SET status = $1, sending_at = $2
		 WHERE id = $3 AND status IN ($4, $5)`,
		model.NotificationSending, time.Now(), id,
		model.NotificationQueued, model.NotificationSending)
}

// MarkSent moves sending -> sent and records which provider accepted
// the message.
func (s *NotificationLogService) MarkSent(ctx context.Context, id, providerID string) (bool, error) {
	return s.transition(ctx,
		`UPDATE notification_logs SET status = $1, sent_at = $2, provider_id = $3
		 WHERE id = $4 AND status = $5`,
		model.NotificationSent, time.Now(), providerID, id, model.NotificationSending)
}

// MarkDelivered moves sent -> delivered on a provider delivery
// callback. A callback for an already-failed or already-delivered log
// is a no-op.
func (s *NotificationLogService) MarkDelivered(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx,
		`UPDATE notification_logs SET status = $1, delivered_at = $2
		 WHERE id = $3 AND status = $4`,
		model.NotificationDelivered, time.Now(), id, model.NotificationSent)
}

// MarkFailed is terminal from any non-terminal state.
func (s *NotificationLogService) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	return s.transition(ctx,
		`UPDATE notification_logs SET status = $1, failed_at = $2, error = $3
		 WHERE id = $4 AND status IN ($5, $6, $7)`,
		model.NotificationFailed, time.Now(), errMsg, id,
		model.NotificationQueued, model.NotificationSending, model.NotificationSent)
}

func (s *NotificationLogService) transition(ctx context.Context, sql string, args ...any) (bool, error) {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("notification transition: %w", classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *NotificationLogService) GetByID(ctx context.Context, id string) (*model.NotificationLog, error) {
	var n model.NotificationLog
	err := s.db.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notification_logs WHERE id = $1`, id,
	).Scan(&n.ID, &n.IncidentID, &n.UserID, &n.Channel, &n.EscalationLevel, &n.Tier, &n.Status,
		&n.ProviderID, &n.Error, &n.QueuedAt, &n.SendingAt, &n.SentAt, &n.DeliveredAt, &n.FailedAt)
	if err != nil {
		return nil, fmt.Errorf("load notification log: %w", classify(err))
	}
	return &n, nil
}

func (s *NotificationLogService) ListByIncident(ctx context.Context, incidentID string) ([]model.NotificationLog, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+notificationColumns+` FROM notification_logs
		 WHERE incident_id = $1 ORDER BY queued_at ASC, id ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list notification logs: %w", classify(err))
	}
	defer rows.Close()

	var logs []model.NotificationLog
	for rows.Next() {
		var n model.NotificationLog
		if err := rows.Scan(&n.ID, &n.IncidentID, &n.UserID, &n.Channel, &n.EscalationLevel, &n.Tier, &n.Status,
			&n.ProviderID, &n.Error, &n.QueuedAt, &n.SendingAt, &n.SentAt, &n.DeliveredAt, &n.FailedAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		logs = append(logs, n)
	}
	return logs, rows.Err()
}

// ListForArchive returns sent/delivered/failed logs older than the
// cutoff, for the retention archiver.
func (s *NotificationLogService) ListForArchive(ctx context.Context, cutoff time.Time, limit int) ([]model.NotificationLog, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+notificationColumns+` FROM notification_logs
		 WHERE queued_at < $1 AND status IN ($2, $3, $4)
		 ORDER BY queued_at ASC LIMIT $5`,
		cutoff, model.NotificationSent, model.NotificationDelivered, model.NotificationFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("list archivable logs: %w", classify(err))
	}
	defer rows.Close()

	var logs []model.NotificationLog
	for rows.Next() {
		var n model.NotificationLog
		if err := rows.Scan(&n.ID, &n.IncidentID, &n.UserID, &n.Channel, &n.EscalationLevel, &n.Tier, &n.Status,
			&n.ProviderID, &n.Error, &n.QueuedAt, &n.SendingAt, &n.SentAt, &n.DeliveredAt, &n.FailedAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		logs = append(logs, n)
	}
	return logs, rows.Err()
}

// DeleteBatch removes archived rows by id.
func (s *NotificationLogService) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM notification_logs WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete archived logs: %w", classify(err))
	}
	return nil
}
