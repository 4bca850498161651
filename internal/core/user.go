package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
)

type UserService struct {
	db DB
}

func NewUserService(db DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Create(ctx context.Context, u *model.User) error {
	u.ID = platform.NewName("usr")
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, name, email, timezone, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, u.Email, u.Timezone, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", classify(err))
	}
	return nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.scan(s.db.QueryRow(ctx,
		`SELECT id, name, email, timezone, is_active, created_at, updated_at
		 FROM users WHERE id = $1`, id))
}

func (s *UserService) scan(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Timezone, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", classify(err))
	}
	return &u, nil
}

// AddContactMethod registers an unverified channel endpoint.
func (s *UserService) AddContactMethod(ctx context.Context, cm *model.ContactMethod) error {
	cm.ID = platform.NewName("cm")
	cm.CreatedAt = time.Now()
	_, err := s.db.Exec(ctx,
		`INSERT INTO contact_methods (id, user_id, channel, address, verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		cm.ID, cm.UserID, cm.Channel, cm.Address, cm.Verified, cm.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add contact method: %w", classify(err))
	}
	return nil
}

func (s *UserService) VerifyContactMethod(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE contact_methods SET verified = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("verify contact method: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ContactMethods returns the user's verified endpoints for a channel.
func (s *UserService) ContactMethods(ctx context.Context, userID, channel string) ([]model.ContactMethod, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, channel, address, verified, created_at
		 FROM contact_methods WHERE user_id = $1 AND channel = $2 AND verified
		 ORDER BY created_at ASC`, userID, channel)
	if err != nil {
		return nil, fmt.Errorf("list contact methods: %w", classify(err))
	}
	defer rows.Close()

	var methods []model.ContactMethod
	for rows.Next() {
		var cm model.ContactMethod
		if err := rows.Scan(&cm.ID, &cm.UserID, &cm.Channel, &cm.Address, &cm.Verified, &cm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact method: %w", err)
		}
		methods = append(methods, cm)
	}
	return methods, rows.Err()
}

// FindByContactAddress maps an inbound sender address (SMS reply,
// Slack user email) to a user. Only verified endpoints qualify, so a
// spoofed sender that was never verified cannot act on incidents.
func (s *UserService) FindByContactAddress(ctx context.Context, channel, address string) (*model.User, error) {
	var userID string
	err := s.db.QueryRow(ctx,
		`SELECT user_id FROM contact_methods
		 WHERE channel = $1 AND address = $2 AND verified
		 ORDER BY created_at ASC LIMIT 1`, channel, address).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("lookup contact address: %w", classify(err))
	}
	return s.GetByID(ctx, userID)
}
