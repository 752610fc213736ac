// Package database provides the connection abstraction of the object layer:
// a pool-backed Provider handing out dedicated connections, the SQL dialects
// the engine renders for, and conversion of driver errors.
package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported databases
type Dialect interface {
	// Name returns the dialect name
	Name() string
	// Quote quotes an identifier
	Quote(identifier string) string
	// Rebind rewrites ? placeholders into the dialect's placeholder syntax
	Rebind(query string) string
	// LockTable returns the statement locking a table against concurrent
	// structural writes, or "" when the database serializes writers itself
	LockTable(table string) string
	// PrimaryKey returns the column definition of an auto-increment id
	PrimaryKey() string
	// TableExists returns a query yielding one row when table exists
	TableExists(table string) (string, []interface{})
	// Columns returns a query listing the column names of table as "name"
	Columns(table string) (string, []interface{})
}

// DialectFor returns the dialect of a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres{}, nil
	case "sqlite3", "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// Postgres is the PostgreSQL dialect
type Postgres struct{}

// Name returns the dialect name
func (Postgres) Name() string { return "postgres" }

// Quote quotes an identifier
func (Postgres) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// Rebind rewrites ? placeholders into $1, $2, ...
func (Postgres) Rebind(query string) string {
	return rebindNumbered(query)
}

// LockTable locks out concurrent writers while allowing readers
func (d Postgres) LockTable(table string) string {
	return fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", d.Quote(table))
}

// PrimaryKey returns the column definition of an auto-increment id
func (Postgres) PrimaryKey() string { return "BIGSERIAL PRIMARY KEY" }

// TableExists returns a query yielding one row when table exists
func (Postgres) TableExists(table string) (string, []interface{}) {
	return "SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?", []interface{}{table}
}

// Columns returns a query listing the column names of table
func (Postgres) Columns(table string) (string, []interface{}) {
	return "SELECT column_name AS name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position", []interface{}{table}
}

// SQLite is the SQLite dialect
type SQLite struct{}

// Name returns the dialect name
func (SQLite) Name() string { return "sqlite3" }

// Quote quotes an identifier
func (SQLite) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// Rebind returns the query unchanged; SQLite accepts ? placeholders
func (SQLite) Rebind(query string) string { return query }

// LockTable returns ""; a SQLite write transaction already excludes other writers
func (SQLite) LockTable(string) string { return "" }

// PrimaryKey returns the column definition of an auto-increment id
func (SQLite) PrimaryKey() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

// TableExists returns a query yielding one row when table exists
func (SQLite) TableExists(table string) (string, []interface{}) {
	return "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", []interface{}{table}
}

// Columns returns a query listing the column names of table
func (SQLite) Columns(table string) (string, []interface{}) {
	return "SELECT name FROM pragma_table_info(?)", []interface{}{table}
}

// rebindNumbered replaces ? outside quoted literals with $n
func rebindNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Placeholders returns n comma separated ? placeholders
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Int64Args converts ids to query arguments
func Int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
