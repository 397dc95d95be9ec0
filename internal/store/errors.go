package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"

	"rollcall/internal/model"
)

const pgUniqueViolation = "23505"

// Classify maps a driver error onto the shared taxonomy: unique-key violations
// become model.ErrConflict, everything else model.ErrStorage. The driver error stays
// in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrConflict) || errors.Is(err, model.ErrStorage) || errors.Is(err, model.ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", model.ErrConflict, pgErr.ConstraintName)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", model.ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", model.ErrStorage, err)
}
