// Package crud implements the generic record operations every model exposes:
// Create, Read, Write, Delete, Search and Count, plus NameGet and
// DefaultValues. Operations run inside the connection and transaction of the
// calling scope; they never commit.
package crud

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/domain"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/hierarchy"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Operation represents a CRUD operation type
type Operation int

const (
	// OperationCreate represents a create operation
	OperationCreate Operation = iota
	// OperationRead represents a read, search or count operation
	OperationRead
	// OperationWrite represents a write operation
	OperationWrite
	// OperationDelete represents a delete operation
	OperationDelete
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationRead:
		return "read"
	case OperationWrite:
		return "write"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// AccessFilter decides what the acting user of a scope may do
type AccessFilter interface {
	// CheckModel returns a security error when op is denied on model
	CheckModel(env schema.Env, model *schema.Model, op Operation) error
	// DeniedFields returns the fields of model the user may not access for op
	DeniedFields(env schema.Env, model *schema.Model, op Operation) (map[string]bool, error)
	// RuleDomain returns the record rule domain restricting searches on model
	RuleDomain(env schema.Env, model *schema.Model) (domain.Domain, error)
	// Changed is called before rows of model change in env's transaction
	Changed(env schema.Env, model *schema.Model)
}

// Engine provides the CRUD operations of one model
type Engine struct {
	model    *schema.Model
	registry *schema.Registry
	access   AccessFilter
	logger   *zap.Logger
}

// NewEngine creates the engine of model. access may be nil, in which case
// only the model's static access flags apply.
func NewEngine(model *schema.Model, registry *schema.Registry, access AccessFilter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		model:    model,
		registry: registry,
		access:   access,
		logger:   logger,
	}
}

// Model returns the model of the engine
func (e *Engine) Model() *schema.Model {
	return e.model
}

// engineFor returns the engine of another model sharing this engine's
// registry and access filter
func (e *Engine) engineFor(name string) (*Engine, error) {
	m, err := e.registry.GetResource(name)
	if err != nil {
		return nil, err
	}
	return NewEngine(m, e.registry, e.access, e.logger), nil
}

func (e *Engine) tree(env schema.Env) *hierarchy.Manager {
	return hierarchy.NewManager(e.model, env.Conn().Dialect(), e.logger)
}

func (e *Engine) compiler(env schema.Env) *domain.Compiler {
	return domain.NewCompiler(e.model, e.registry, env.Conn().Dialect())
}

// changed reports a pending change of m to the access filter
func (e *Engine) changed(env schema.Env, m *schema.Model) {
	if e.access != nil {
		e.access.Changed(env, m)
	}
}

// checkAccess applies the model's static flags and the access filter.
// Internal scopes bypass both.
func (e *Engine) checkAccess(env schema.Env, op Operation) error {
	if env.Internal() {
		return nil
	}
	allowed := true
	switch op {
	case OperationCreate:
		allowed = e.model.CanCreate()
	case OperationRead:
		allowed = e.model.CanRead()
	case OperationWrite:
		allowed = e.model.CanWrite()
	case OperationDelete:
		allowed = e.model.CanDelete()
	}
	if !allowed {
		return ormerrors.Security(e.model.Name(), op.String())
	}
	if e.access == nil {
		return nil
	}
	return e.access.CheckModel(env, e.model, op)
}

// deniedFields returns the fields the scope may not touch for op
func (e *Engine) deniedFields(env schema.Env, op Operation) (map[string]bool, error) {
	if env.Internal() || e.access == nil {
		return nil, nil
	}
	return e.access.DeniedFields(env, e.model, op)
}

// runHooks runs the hooks of typ in registration order
func (e *Engine) runHooks(env schema.Env, typ schema.HookType, record schema.Record) error {
	for _, hook := range e.model.Hooks(typ) {
		if err := hook(env, record); err != nil {
			return err
		}
	}
	return nil
}
