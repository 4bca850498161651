package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classified store errors. Callers match on class, never on message.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrSerialization = errors.New("serialization conflict")
	ErrUnique        = errors.New("unique violation")
	ErrValidation    = errors.New("validation failed")
	ErrForbidden     = errors.New("forbidden")
)

// Postgres error codes we classify.
const (
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// classify maps driver errors onto the classified sentinels, keeping
// the original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure:
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %w", ErrUnique, err)
		}
	}
	return err
}
