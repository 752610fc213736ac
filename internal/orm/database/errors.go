package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Common database error types
var (
	// ErrNoRows is returned when a single-row query finds nothing
	ErrNoRows = errors.New("no rows in result set")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrSerialization is returned when the database aborts a transaction
	// because of a deadlock or a serialization conflict
	ErrSerialization = errors.New("serialization failure")
)

// ConvertError maps driver-specific errors to the package errors. The
// original error stays in the chain.
func ConvertError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNoRows, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return wrapCode(err, pgErr.Code, pgErr.Detail)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return wrapCode(err, string(pqErr.Code), pqErr.Detail)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
		case sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %w", ErrNotNullViolation, err)
		case sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %w", ErrCheckViolation, err)
		}
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		}
	}

	return err
}

func wrapCode(err error, code, detail string) error {
	var kind error
	switch code {
	case "23505": // unique_violation
		kind = ErrUniqueViolation
	case "23503": // foreign_key_violation
		kind = ErrForeignKeyViolation
	case "23514": // check_violation
		kind = ErrCheckViolation
	case "23502": // not_null_violation
		kind = ErrNotNullViolation
	case "40001", "40P01": // serialization_failure, deadlock_detected
		kind = ErrSerialization
	default:
		return err
	}
	if detail != "" {
		return fmt.Errorf("%w: %s: %w", kind, detail, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// IsRetryable reports whether the transaction that produced err can be retried
func IsRetryable(err error) bool {
	return errors.Is(ConvertError(err), ErrSerialization)
}
