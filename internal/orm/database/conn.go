package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNoTransaction is returned when Commit or Rollback is called outside a transaction
var ErrNoTransaction = errors.New("no transaction in progress")

// Conn is one dedicated database connection with at most one open
// transaction. Queries use ? placeholders; the dialect rebinds them.
type Conn interface {
	// Dialect returns the SQL dialect of the connection
	Dialect() Dialect
	// QueryValue returns the first column of the first row, nil when no row matches
	QueryValue(ctx context.Context, query string, args ...interface{}) (interface{}, error)
	// QueryAsDictionary returns every row as a column name to value map
	QueryAsDictionary(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)
	// QueryIDs returns the first column of every row as int64
	QueryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error)
	// Execute runs a statement and returns the number of affected rows
	Execute(ctx context.Context, query string, args ...interface{}) (int64, error)
	// Begin starts a transaction
	Begin(ctx context.Context, opts *sql.TxOptions) error
	// Commit commits the open transaction
	Commit() error
	// Rollback rolls back the open transaction
	Rollback() error
	// InTransaction reports whether a transaction is open
	InTransaction() bool
}

// querier is implemented by both *sql.Conn and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Connection implements Conn over a connection taken from the pool
type Connection struct {
	conn    *sql.Conn
	tx      *sql.Tx
	dialect Dialect
	logger  *zap.Logger
}

// NewConnection wraps a dedicated pool connection
func NewConnection(conn *sql.Conn, dialect Dialect, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{conn: conn, dialect: dialect, logger: logger}
}

// Dialect returns the SQL dialect of the connection
func (c *Connection) Dialect() Dialect {
	return c.dialect
}

func (c *Connection) querier() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// QueryValue returns the first column of the first row
func (c *Connection) QueryValue(ctx context.Context, query string, args ...interface{}) (interface{}, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ConvertError(rows.Err())
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan value: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], ConvertError(rows.Err())
}

// QueryAsDictionary returns every row as a column name to value map
func (c *Connection) QueryAsDictionary(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}

	return result, ConvertError(rows.Err())
}

// QueryIDs returns the first column of every row as int64
func (c *Connection) QueryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, ConvertError(rows.Err())
}

// Execute runs a statement and returns the number of affected rows
func (c *Connection) Execute(ctx context.Context, query string, args ...interface{}) (int64, error) {
	start := time.Now()
	result, err := c.querier().ExecContext(ctx, c.dialect.Rebind(query), args...)
	c.trace(query, args, start, err)
	if err != nil {
		return 0, ConvertError(err)
	}
	return result.RowsAffected()
}

func (c *Connection) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := c.querier().QueryContext(ctx, c.dialect.Rebind(query), args...)
	c.trace(query, args, start, err)
	if err != nil {
		return nil, ConvertError(err)
	}
	return rows, nil
}

func (c *Connection) trace(query string, args []interface{}, start time.Time, err error) {
	if ce := c.logger.Check(zap.DebugLevel, "sql"); ce != nil {
		ce.Write(
			zap.String("query", query),
			zap.Int("args", len(args)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
}

// Begin starts a transaction
func (c *Connection) Begin(ctx context.Context, opts *sql.TxOptions) error {
	if c.tx != nil {
		return errors.New("transaction already in progress")
	}
	tx, err := c.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", ConvertError(err))
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction
func (c *Connection) Commit() error {
	if c.tx == nil {
		return ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", ConvertError(err))
	}
	return nil
}

// Rollback rolls back the open transaction
func (c *Connection) Rollback() error {
	if c.tx == nil {
		return ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// InTransaction reports whether a transaction is open
func (c *Connection) InTransaction() bool {
	return c.tx != nil
}

// Close rolls back any open transaction and returns the connection to the pool
func (c *Connection) Close() error {
	if c.tx != nil {
		_ = c.Rollback()
	}
	return c.conn.Close()
}
