package transaction

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManager(t *testing.T) (*Manager, *sql.DB) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE item (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`)
	require.NoError(t, err)

	provider, err := database.NewProvider(db, "sqlite3", nil)
	require.NoError(t, err)

	return NewManager(provider, Serializable, nil), db
}

func countItems(t *testing.T, db *sql.DB) int {
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM item").Scan(&n))
	return n
}

func TestWithTransactionCommits(t *testing.T) {
	m, db := setupManager(t)

	err := m.WithTransaction(context.Background(), func(ctx context.Context, conn database.Conn) error {
		assert.True(t, conn.InTransaction())

		inCtx, ok := FromContext(ctx)
		assert.True(t, ok)
		assert.Same(t, conn, inCtx)

		_, err := conn.Execute(ctx, "INSERT INTO item (name) VALUES (?)", "a")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, db))
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	m, db := setupManager(t)
	boom := errors.New("boom")

	err := m.WithTransaction(context.Background(), func(ctx context.Context, conn database.Conn) error {
		if _, err := conn.Execute(ctx, "INSERT INTO item (name) VALUES (?)", "a"); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, db))
}

func TestWithTransactionRollsBackAndRepanics(t *testing.T) {
	m, db := setupManager(t)

	assert.PanicsWithValue(t, "fatal", func() {
		_ = m.WithTransaction(context.Background(), func(ctx context.Context, conn database.Conn) error {
			_, _ = conn.Execute(ctx, "INSERT INTO item (name) VALUES (?)", "a")
			panic("fatal")
		})
	})

	assert.Equal(t, 0, countItems(t, db))
}

func TestWithRetryConfig(t *testing.T) {
	m, db := setupManager(t)
	config := &RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond}

	t.Run("retries serialization failures", func(t *testing.T) {
		attempts := 0
		err := m.WithRetryConfig(context.Background(), config, func(ctx context.Context, conn database.Conn) error {
			attempts++
			if _, err := conn.Execute(ctx, "INSERT INTO item (name) VALUES (?)", "r"); err != nil {
				return err
			}
			if attempts < 2 {
				return errors.New("pq: could not serialize access due to concurrent update (SQLSTATE 40001)")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 1, countItems(t, db))
	})

	t.Run("does not retry ordinary errors", func(t *testing.T) {
		attempts := 0
		err := m.WithRetryConfig(context.Background(), config, func(ctx context.Context, conn database.Conn) error {
			attempts++
			return errors.New("unique constraint violation")
		})

		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		err := m.WithRetryConfig(context.Background(), config, func(ctx context.Context, conn database.Conn) error {
			attempts++
			return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
		})

		assert.ErrorIs(t, err, ErrDeadlock)
		assert.Equal(t, 3, attempts)
	})
}

func TestWithTimeout(t *testing.T) {
	m, _ := setupManager(t)

	err := m.WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context, conn database.Conn) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, ErrTransactionTimeout)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"PostgreSQL deadlock code", errors.New("pq: deadlock detected (SQLSTATE 40P01)"), true},
		{"deadlock found message", errors.New("ERROR: deadlock found when trying to get lock"), true},
		{"lock wait timeout", errors.New("lock wait timeout exceeded; try restarting transaction"), true},
		{"serialization failure", errors.New("could not serialize access due to concurrent update"), true},
		{"sqlite busy", errors.New("database is locked"), true},
		{"constraint violation", errors.New("unique constraint violation"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestParseIsolationLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected IsolationLevel
		wantErr  bool
	}{
		{"", Serializable, false},
		{"serializable", Serializable, false},
		{"read_committed", ReadCommitted, false},
		{"REPEATABLE READ", RepeatableRead, false},
		{"read-uncommitted", ReadUncommitted, false},
		{"snapshot", Serializable, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseIsolationLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
			assert.Equal(t, tt.expected.ToSQLOptions().Isolation.String(), level.ToSQLOptions().Isolation.String())
		})
	}
}

func TestWithSavepoint(t *testing.T) {
	m, db := setupManager(t)
	boom := errors.New("boom")

	err := m.WithTransaction(context.Background(), func(ctx context.Context, conn database.Conn) error {
		if _, err := conn.Execute(ctx, "INSERT INTO item (name) VALUES (?)", "outer"); err != nil {
			return err
		}

		err := WithSavepoint(ctx, conn, func(ctx context.Context, conn database.Conn) error {
			if _, err := conn.Execute(ctx, "INSERT INTO item (name) VALUES (?)", "discarded"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		return WithSavepoint(ctx, conn, func(ctx context.Context, conn database.Conn) error {
			_, err := conn.Execute(ctx, "INSERT INTO item (name) VALUES (?)", "kept")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countItems(t, db))

	var discarded int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM item WHERE name = 'discarded'").Scan(&discarded))
	assert.Zero(t, discarded)
}

func TestWithSavepointRequiresTransaction(t *testing.T) {
	_, db := setupManager(t)
	provider, err := database.NewProvider(db, "sqlite3", nil)
	require.NoError(t, err)

	conn, err := provider.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	err = WithSavepoint(context.Background(), conn, func(context.Context, database.Conn) error { return nil })
	assert.ErrorIs(t, err, ErrNestedTransactionNotSupported)
}
