package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Provider hands out dedicated connections from a database/sql pool
type Provider struct {
	db      *sql.DB
	driver  string
	dialect Dialect
	logger  *zap.Logger
}

// Open opens a pool for driver and dsn and verifies it with a ping
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Provider, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p, err := NewProvider(db, driver, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewProvider wraps an existing pool
func NewProvider(db *sql.DB, driver string, logger *zap.Logger) (*Provider, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		db:      db,
		driver:  driver,
		dialect: dialect,
		logger:  logger,
	}, nil
}

// Acquire takes a dedicated connection from the pool. The caller must Close it.
func (p *Provider) Acquire(ctx context.Context) (*Connection, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return NewConnection(conn, p.dialect, p.logger), nil
}

// DB returns the underlying pool
func (p *Provider) DB() *sql.DB {
	return p.db
}

// Driver returns the database/sql driver name
func (p *Provider) Driver() string {
	return p.driver
}

// Dialect returns the SQL dialect of the pool
func (p *Provider) Dialect() Dialect {
	return p.dialect
}

// Close closes the pool
func (p *Provider) Close() error {
	return p.db.Close()
}
