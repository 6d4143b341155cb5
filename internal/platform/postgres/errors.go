package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/agentkit/internal/store"
)

// PostgreSQL error codes
const (
	// undefinedTableCode is returned when the migrations have not run.
	undefinedTableCode = "42P01"

	// stringDataRightTruncationCode is returned for oversized values.
	stringDataRightTruncationCode = "22001"
)

// ErrSchemaMissing is returned when the entries table does not exist.
var ErrSchemaMissing = errors.New("database schema missing: run migrations")

// MapError maps a database error to a store error, wrapping the original
// error to preserve context.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTableCode:
			return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
		case stringDataRightTruncationCode:
			return fmt.Errorf("%w: value too long: %v", store.ErrInvalidKey, err)
		}
	}

	return err
}
