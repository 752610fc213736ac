package crud

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/conduit-lang/objectserver/internal/orm/domain"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Search returns the ids of records matching d, restricted by the record
// rules of the acting user. An empty order sorts by id; a zero limit is
// unlimited.
func (e *Engine) Search(env schema.Env, d domain.Domain, order []string, offset, limit int64) ([]int64, error) {
	if err := e.checkAccess(env, OperationRead); err != nil {
		return nil, err
	}
	d, err := e.restrict(env, d)
	if err != nil {
		return nil, err
	}
	query, args, err := e.compiler(env).SelectIDs(d, order, offset, limit)
	if err != nil {
		return nil, err
	}
	return env.Conn().QueryIDs(env.Context(), query, args...)
}

// Count returns the number of records Search would return without paging
func (e *Engine) Count(env schema.Env, d domain.Domain) (int64, error) {
	if err := e.checkAccess(env, OperationRead); err != nil {
		return 0, err
	}
	d, err := e.restrict(env, d)
	if err != nil {
		return 0, err
	}
	query, args, err := e.compiler(env).SelectCount(d)
	if err != nil {
		return 0, err
	}
	v, err := env.Conn().QueryValue(env.Context(), query, args...)
	if err != nil {
		return 0, err
	}
	return cast.ToInt64E(v)
}

// restrict ANDs the record rule domain of the acting user into d
func (e *Engine) restrict(env schema.Env, d domain.Domain) (domain.Domain, error) {
	if env.Internal() || e.access == nil {
		return d, nil
	}
	rules, err := e.access.RuleDomain(env, e.model)
	if err != nil {
		return nil, fmt.Errorf("record rules of %s: %w", e.model.Name(), err)
	}
	return d.And(rules), nil
}

// NameGet returns the display names of the stored records among ids. Models
// without a name field display as "model,id".
func (e *Engine) NameGet(env schema.Env, ids []int64) (map[int64]string, error) {
	if err := e.checkAccess(env, OperationRead); err != nil {
		return nil, err
	}
	return e.names(env, ids)
}

// DefaultValues evaluates the default getters of fields, or of every field
// when fields is nil. Fields without a default are left out.
func (e *Engine) DefaultValues(env schema.Env, fields []string) (schema.Record, error) {
	if err := e.checkAccess(env, OperationCreate); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = e.model.FieldNames()
	}

	out := schema.Record{}
	for _, name := range fields {
		f, ok := e.model.Field(name)
		if !ok {
			return nil, ormerrors.ArgumentOutOfRange(e.model.Name(), "unknown field %q", name)
		}
		getter := f.DefaultGetter()
		if getter == nil || f.IsInternal() {
			continue
		}
		value, err := getter(env)
		if err != nil {
			return nil, fmt.Errorf("default of %s: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}
