// Package transaction runs units of work on a dedicated connection inside
// one database transaction, with isolation, retry and timeout control.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"go.uber.org/zap"
)

var (
	// ErrDeadlock is returned when retries on deadlock are exhausted
	ErrDeadlock = errors.New("deadlock detected")
	// ErrTransactionTimeout is returned when a transaction times out
	ErrTransactionTimeout = errors.New("transaction timeout")
	// ErrNestedTransactionNotSupported is returned when a savepoint is requested outside a transaction
	ErrNestedTransactionNotSupported = errors.New("nested transactions require an existing transaction")
)

// savepointCounter provides unique savepoint names across all transactions
var savepointCounter atomic.Uint64

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadUncommitted allows dirty reads
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "SERIALIZABLE"
	}
}

// ParseIsolationLevel converts a configuration value such as
// "read_committed" or "SERIALIZABLE" to an IsolationLevel
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	switch strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(s))) {
	case "read uncommitted":
		return ReadUncommitted, nil
	case "read committed":
		return ReadCommitted, nil
	case "repeatable read":
		return RepeatableRead, nil
	case "serializable", "":
		return Serializable, nil
	default:
		return Serializable, fmt.Errorf("unknown isolation level: %s", s)
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	var level sql.IsolationLevel
	switch l {
	case ReadUncommitted:
		level = sql.LevelReadUncommitted
	case ReadCommitted:
		level = sql.LevelReadCommitted
	case RepeatableRead:
		level = sql.LevelRepeatableRead
	default:
		level = sql.LevelSerializable
	}
	return &sql.TxOptions{Isolation: level}
}

// Provider hands out dedicated connections
type Provider interface {
	Acquire(ctx context.Context) (*database.Connection, error)
}

// Work is a unit of work bound to one connection and transaction
type Work func(ctx context.Context, conn database.Conn) error

// Manager runs units of work in transactions
type Manager struct {
	provider Provider
	level    IsolationLevel
	logger   *zap.Logger
}

// NewManager creates a manager using level for every transaction
func NewManager(provider Provider, level IsolationLevel, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{provider: provider, level: level, logger: logger}
}

// IsolationLevel returns the default isolation level
func (m *Manager) IsolationLevel() IsolationLevel {
	return m.level
}

// WithTransaction executes fn within a transaction.
// Automatically commits on success or rolls back on error.
func (m *Manager) WithTransaction(ctx context.Context, fn Work) error {
	return m.WithTransactionIsolation(ctx, m.level, fn)
}

// WithTransactionIsolation executes fn within a transaction with the given
// isolation level. The connection is returned to the pool on every exit
// path; a panic rolls back and is re-raised.
func (m *Manager) WithTransactionIsolation(ctx context.Context, level IsolationLevel, fn Work) error {
	conn, err := m.provider.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Begin(ctx, level.ToSQLOptions()); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := conn.Rollback(); rbErr != nil {
				m.logger.Error("rollback after panic failed", zap.Error(rbErr))
			}
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(WithContext(ctx, conn), conn); err != nil {
		if rbErr := conn.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return conn.Commit()
}

// WithSavepoint runs fn inside a savepoint of the transaction open on conn.
// A failing fn rolls back to the savepoint and leaves the outer transaction
// usable.
func WithSavepoint(ctx context.Context, conn database.Conn, fn Work) error {
	if !conn.InTransaction() {
		return ErrNestedTransactionNotSupported
	}

	name := fmt.Sprintf("sp_%d", savepointCounter.Add(1))
	if _, err := conn.Execute(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = conn.Execute(ctx, "ROLLBACK TO SAVEPOINT "+name)
			panic(p)
		}
	}()

	if err := fn(ctx, conn); err != nil {
		if _, rbErr := conn.Execute(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("savepoint failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if _, err := conn.Execute(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
