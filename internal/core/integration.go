package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

const integrationColumns = `id, name, provider, secret, signature_header, signature_algorithm,
	signature_format, default_service_id, dedup_window_minutes, is_active, created_at, updated_at`

type IntegrationService struct {
	db DB
}

func NewIntegrationService(db DB) *IntegrationService {
	return &IntegrationService{db: db}
}

func (s *IntegrationService) Create(ctx context.Context, integ *model.Integration) error {
	integ.ID = platform.NewName("intg")
	now := time.Now()
	integ.CreatedAt = now
	integ.UpdatedAt = now
	if integ.SignatureHeader == "" {
		integ.SignatureHeader = "X-Webhook-Signature"
	}
	if integ.SignatureAlgorithm == "" {
		integ.SignatureAlgorithm = "sha256"
	}
	if integ.SignatureFormat == "" {
		integ.SignatureFormat = "hex"
	}
	if integ.DedupWindowMinutes == 0 {
		integ.DedupWindowMinutes = 15
	}
	if integ.DedupWindowMinutes < 1 {
		integ.DedupWindowMinutes = 1
	}
	if integ.DedupWindowMinutes > 120 {
		integ.DedupWindowMinutes = 120
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO integrations (`+integrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		integ.ID, integ.Name, integ.Provider, integ.Secret, integ.SignatureHeader,
		integ.SignatureAlgorithm, integ.SignatureFormat, integ.DefaultServiceID,
		integ.DedupWindowMinutes, integ.IsActive, integ.CreatedAt, integ.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create integration: %w", classify(err))
	}
	return nil
}

func (s *IntegrationService) GetByName(ctx context.Context, name string) (*model.Integration, error) {
	return s.scan(s.db.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE name = $1`, name))
}

func (s *IntegrationService) GetByID(ctx context.Context, id string) (*model.Integration, error) {
	return s.scan(s.db.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE id = $1`, id))
}

func (s *IntegrationService) scan(row pgx.Row) (*model.Integration, error) {
	var i model.Integration
	err := row.Scan(&i.ID, &i.Name, &i.Provider, &i.Secret, &i.SignatureHeader,
		&i.SignatureAlgorithm, &i.SignatureFormat, &i.DefaultServiceID,
		&i.DedupWindowMinutes, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load integration: %w", classify(err))
	}
	return &i, nil
}

// SetActive toggles the integration. Deliveries for a disabled
// integration answer 404 at the webhook receiver.
func (s *IntegrationService) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE integrations SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("toggle integration: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *IntegrationService) List(ctx context.Context) ([]model.Integration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+integrationColumns+` FROM integrations ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", classify(err))
	}
	defer rows.Close()

	var out []model.Integration
	for rows.Next() {
		var i model.Integration
		if err := rows.Scan(&i.ID, &i.Name, &i.Provider, &i.Secret, &i.SignatureHeader,
			&i.SignatureAlgorithm, &i.SignatureFormat, &i.DefaultServiceID,
			&i.DedupWindowMinutes, &i.IsActive, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
