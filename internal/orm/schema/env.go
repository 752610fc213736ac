package schema

import (
	"context"

	"github.com/conduit-lang/objectserver/internal/orm/database"
)

// Env is the request scope seen by getters, defaults, hooks and methods.
// It owns one connection and one transaction for the duration of a call.
type Env interface {
	// Context returns the context of the current call
	Context() context.Context
	// Conn returns the connection bound to the scope
	Conn() database.Conn
	// UserID returns the acting user
	UserID() int64
	// Internal reports whether the scope acts on behalf of the engine itself,
	// which bypasses access checks and readonly restrictions
	Internal() bool
	// Registry returns the loaded model registry
	Registry() *Registry
	// Search returns ids of model records matching domain
	Search(model string, domain []interface{}, order []string, offset, limit int64) ([]int64, error)
	// Read returns the requested fields of model records
	Read(model string, ids []int64, fields []string) ([]Record, error)
}

// ValueGetter computes a functional field for a batch of ids
type ValueGetter func(env Env, ids []int64) (map[int64]interface{}, error)

// DefaultGetter computes the default value of a field at creation
type DefaultGetter func(env Env) (interface{}, error)

// Hook runs around a lifecycle event of a model
type Hook func(env Env, record Record) error

// MethodFunc is a model-specific service method
type MethodFunc func(env Env, args []interface{}) (interface{}, error)

// Constant returns a DefaultGetter yielding v
func Constant(v interface{}) DefaultGetter {
	return func(Env) (interface{}, error) {
		return v, nil
	}
}
