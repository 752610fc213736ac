package core

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

type testEnv struct {
	ctx  context.Context
	conn database.Conn
}

func (e *testEnv) Context() context.Context   { return e.ctx }
func (e *testEnv) Conn() database.Conn        { return e.conn }
func (e *testEnv) UserID() int64              { return 0 }
func (e *testEnv) Internal() bool             { return true }
func (e *testEnv) Registry() *schema.Registry { return nil }

func (e *testEnv) Search(string, []interface{}, []string, int64, int64) ([]int64, error) {
	return nil, nil
}

func (e *testEnv) Read(string, []int64, []string) ([]schema.Record, error) {
	return nil, nil
}

func TestRegister(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, Register(r))
	require.NoError(t, r.Load())

	for _, name := range []string{ModelModel, ModelField, ModelModelData, ModelUser, ModelRole,
		ModelUserRole, ModelModelAccess, ModelFieldAccess, ModelRule} {
		assert.True(t, r.Exists(name), name)
	}

	user, err := r.GetResource(ModelUser)
	require.NoError(t, err)
	_, ok := user.LookupMethod("authenticate")
	assert.True(t, ok)
}

func TestHashPasswordHook(t *testing.T) {
	tests := []struct {
		name   string
		record schema.Record
		hashed bool
	}{
		{"plain password", schema.Record{"password": "secret"}, true},
		{"no password", schema.Record{"name": "x"}, false},
		{"nil password", schema.Record{"password": nil}, false},
		{"empty password", schema.Record{"password": ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.record["password"]
			require.NoError(t, hashPassword(nil, tt.record))
			if !tt.hashed {
				assert.Equal(t, before, tt.record["password"])
				return
			}
			hash := tt.record["password"].(string)
			assert.True(t, isHashed(hash))
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")))
		})
	}

	t.Run("already hashed", func(t *testing.T) {
		hash, err := HashPassword("secret")
		require.NoError(t, err)
		record := schema.Record{"password": hash}
		require.NoError(t, hashPassword(nil, record))
		assert.Equal(t, hash, record["password"])
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlConn, err := db.Conn(ctx)
	require.NoError(t, err)
	env := &testEnv{ctx: ctx, conn: database.NewConnection(sqlConn, database.SQLite{}, nil)}

	hash, err := HashPassword("secret")
	require.NoError(t, err)

	const query = `SELECT id, password FROM core_user WHERE login = \? AND active = \?`
	expect := func(login string, rows *sqlmock.Rows) {
		mock.ExpectQuery(query).WithArgs(login, true).WillReturnRows(rows)
	}

	expect("admin", sqlmock.NewRows([]string{"id", "password"}).AddRow(int64(1), hash))
	id, err := authenticate(env, []interface{}{"admin", "secret"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	expect("admin", sqlmock.NewRows([]string{"id", "password"}).AddRow(int64(1), hash))
	_, err = authenticate(env, []interface{}{"admin", "wrong"})
	assert.ErrorIs(t, err, ormerrors.ErrSecurity)

	expect("ghost", sqlmock.NewRows([]string{"id", "password"}))
	_, err = authenticate(env, []interface{}{"ghost", "secret"})
	assert.ErrorIs(t, err, ormerrors.ErrSecurity)

	expect("nopass", sqlmock.NewRows([]string{"id", "password"}).AddRow(int64(4), nil))
	_, err = authenticate(env, []interface{}{"nopass", ""})
	assert.ErrorIs(t, err, ormerrors.ErrSecurity)

	_, err = authenticate(env, []interface{}{"admin"})
	assert.ErrorIs(t, err, ormerrors.ErrArgument)

	require.NoError(t, mock.ExpectationsWereMet())
}
