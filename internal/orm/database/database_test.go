package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRebind(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"no placeholders", "SELECT 1", "SELECT 1"},
		{"numbered", "SELECT id FROM t WHERE a = ? AND b = ?", "SELECT id FROM t WHERE a = $1 AND b = $2"},
		{"literal question mark", "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Postgres{}.Rebind(tt.query))
		})
	}
}

func TestSQLiteRebindKeepsPlaceholders(t *testing.T) {
	assert.Equal(t, "SELECT ? , ?", SQLite{}.Rebind("SELECT ? , ?"))
}

func TestDialectFor(t *testing.T) {
	for _, driver := range []string{"pgx", "postgres"} {
		d, err := DialectFor(driver)
		require.NoError(t, err)
		assert.Equal(t, "postgres", d.Name())
	}

	d, err := DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", d.Name())
	assert.Empty(t, d.LockTable("test_node"))

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"core_user"`, Postgres{}.Quote("core_user"))
	assert.Equal(t, `"we""ird"`, SQLite{}.Quote(`we"ird`))
	assert.Equal(t, `LOCK TABLE "test_node" IN SHARE ROW EXCLUSIVE MODE`, Postgres{}.LockTable("test_node"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
	assert.Equal(t, []interface{}{int64(1), int64(2)}, Int64Args([]int64{1, 2}))
}

func TestConvertError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"pgx unique", &pgconn.PgError{Code: "23505"}, ErrUniqueViolation},
		{"pgx foreign key", &pgconn.PgError{Code: "23503"}, ErrForeignKeyViolation},
		{"pgx serialization", &pgconn.PgError{Code: "40001"}, ErrSerialization},
		{"pgx deadlock", &pgconn.PgError{Code: "40P01"}, ErrSerialization},
		{"pq not null", &pq.Error{Code: "23502"}, ErrNotNullViolation},
		{"pq check", &pq.Error{Code: "23514"}, ErrCheckViolation},
		{"no rows", sql.ErrNoRows, ErrNoRows},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converted := ConvertError(fmt.Errorf("exec: %w", tt.err))
			assert.True(t, errors.Is(converted, tt.want))
			assert.True(t, errors.Is(converted, tt.err))
		})
	}

	plain := errors.New("boom")
	assert.Same(t, plain, ConvertError(plain))
	assert.Nil(t, ConvertError(nil))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRetryable(plain))
}

func TestConnectionQueriesWithSQLMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p, err := NewProvider(db, "pgx", nil)
	require.NoError(t, err)

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT MAX\(id\) FROM core_model WHERE name = \$1`).
		WithArgs("test.node").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(7)))
	mock.ExpectExec(`UPDATE core_field SET label = \$1 WHERE id = \$2`).
		WithArgs("Name", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, conn.Begin(ctx, nil))
	assert.True(t, conn.InTransaction())

	v, err := conn.QueryValue(ctx, "SELECT MAX(id) FROM core_model WHERE name = ?", "test.node")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	n, err := conn.Execute(ctx, "UPDATE core_field SET label = ? WHERE id = ?", "Name", int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, conn.Commit())
	assert.False(t, conn.InTransaction())
	assert.ErrorIs(t, conn.Commit(), ErrNoTransaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionWithSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	p, err := NewProvider(db, "sqlite3", nil)
	require.NoError(t, err)

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Execute(ctx, `CREATE TABLE item (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`)
	require.NoError(t, err)

	require.NoError(t, conn.Begin(ctx, nil))
	for _, name := range []string{"a", "b", "c"} {
		_, err := conn.Execute(ctx, "INSERT INTO item (name) VALUES (?)", name)
		require.NoError(t, err)
	}
	require.NoError(t, conn.Rollback())

	count, err := conn.QueryValue(ctx, "SELECT COUNT(*) FROM item")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = conn.Execute(ctx, "INSERT INTO item (name) VALUES (?), (?)", "x", "y")
	require.NoError(t, err)

	ids, err := conn.QueryIDs(ctx, "SELECT id FROM item ORDER BY id DESC")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Greater(t, ids[0], ids[1])

	rows, err := conn.QueryAsDictionary(ctx, "SELECT id, name FROM item WHERE name = ?", "x")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x", rows[0]["name"])

	missing, err := conn.QueryValue(ctx, "SELECT name FROM item WHERE id = ?", int64(999))
	require.NoError(t, err)
	assert.Nil(t, missing)

	q, args := p.Dialect().Columns("item")
	cols, err := conn.QueryAsDictionary(ctx, q, args...)
	require.NoError(t, err)
	assert.Len(t, cols, 2)
}
