// Package security decides what the acting user may do. It reads the
// access-control models of the core module: model access rows grant or deny
// whole operations, field access rows hide fields, and record rules restrict
// searches with extra domains.
//
// Rows without a role apply to every user. Administrators and internal
// scopes bypass every check.
package security

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/cache"
	"github.com/conduit-lang/objectserver/internal/orm/core"
	"github.com/conduit-lang/objectserver/internal/orm/crud"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// userRoles restricts the rows aliased a to global rows and rows of the
// roles of the user bound to the placeholder
const userRoles = `(a.role IS NULL OR a.role IN (SELECT ur.role FROM core_user_role ur WHERE ur."user" = ?))`

// Filter implements crud.AccessFilter on top of the core access models
type Filter struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

var _ crud.AccessFilter = (*Filter)(nil)

// NewFilter creates a filter. Decisions are cached in c for ttl; a nil c
// disables caching.
func NewFilter(c cache.Cache, ttl time.Duration, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Watched reports whether writes to model change access decisions
func Watched(model string) bool {
	switch model {
	case core.ModelUser, core.ModelRole, core.ModelUserRole, core.ModelModelAccess, core.ModelFieldAccess, core.ModelRule:
		return true
	}
	return false
}

// CheckModel fails with a security error unless every model access row
// that applies to the user allows op
func (f *Filter) CheckModel(env schema.Env, model *schema.Model, op crud.Operation) error {
	if env.Internal() {
		return nil
	}
	admin, err := f.isAdmin(env)
	if err != nil || admin {
		return err
	}

	column, err := modelColumn(op)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%d:%s:%s", env.UserID(), model.Name(), op)
	allowed, err := f.cachedBool(env, key, func() (bool, error) {
		v, err := env.Conn().QueryValue(env.Context(), fmt.Sprintf(
			`SELECT MIN(CASE WHEN a.%s THEN 1 ELSE 0 END) FROM core_model_access a JOIN core_model m ON a.model = m.id WHERE m.name = ? AND %s`,
			column, userRoles), model.Name(), env.UserID())
		if err != nil {
			return false, fmt.Errorf("failed to check access to %s: %w", model.Name(), err)
		}
		return v == nil || cast.ToInt64(v) == 1, nil
	})
	if err != nil {
		return err
	}
	if !allowed {
		f.logger.Info("access denied",
			zap.String("model", model.Name()),
			zap.String("operation", op.String()),
			zap.Int64("user", env.UserID()))
		return ormerrors.Security(model.Name(), op.String())
	}
	return nil
}

// DeniedFields returns the fields of model the user may not access for op.
// A field is denied when any field access row that applies to the user
// denies it. Inherited fields follow the rows of their base model.
func (f *Filter) DeniedFields(env schema.Env, model *schema.Model, op crud.Operation) (map[string]bool, error) {
	if env.Internal() {
		return nil, nil
	}
	column := "allow_read"
	switch op {
	case crud.OperationCreate, crud.OperationWrite:
		column = "allow_write"
	case crud.OperationDelete:
		return nil, nil
	}
	admin, err := f.isAdmin(env)
	if err != nil || admin {
		return nil, err
	}

	denied := make(map[string]bool)
	for _, owner := range owners(env.Registry(), model) {
		key := fmt.Sprintf("%d:%s:fields:%s", env.UserID(), owner.Name(), column)
		names, err := f.cachedStrings(env, key, func() ([]string, error) {
			return deniedColumns(env, owner.Name(), column)
		})
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if field, ok := model.Field(name); ok && declaredBy(field, model, owner) {
				denied[name] = true
			}
		}
	}
	return denied, nil
}

func deniedColumns(env schema.Env, model, column string) ([]string, error) {
	rows, err := env.Conn().QueryAsDictionary(env.Context(), fmt.Sprintf(
		`SELECT fl.name AS name, MIN(CASE WHEN a.%s THEN 1 ELSE 0 END) AS allowed FROM core_field_access a JOIN core_field fl ON a.field = fl.id JOIN core_model m ON fl.model = m.id WHERE m.name = ? AND %s GROUP BY fl.name ORDER BY fl.name`,
		column, userRoles), model, env.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to check field access to %s: %w", model, err)
	}
	names := []string{}
	for _, row := range rows {
		if cast.ToInt64(row["allowed"]) == 0 {
			names = append(names, cast.ToString(row["name"]))
		}
	}
	return names, nil
}

// owners returns model followed by its base models, transitively
func owners(r *schema.Registry, model *schema.Model) []*schema.Model {
	out := []*schema.Model{model}
	seen := map[string]bool{model.Name(): true}
	for i := 0; i < len(out); i++ {
		for _, inh := range out[i].Inheritances() {
			if seen[inh.BaseModel] {
				continue
			}
			seen[inh.BaseModel] = true
			if base, ok := r.Get(inh.BaseModel); ok {
				out = append(out, base)
			}
		}
	}
	return out
}

// declaredBy reports whether field of model is stored by owner
func declaredBy(field *schema.Field, model, owner *schema.Model) bool {
	if owner == model {
		return !field.IsInherited()
	}
	for field.IsInherited() {
		if field.Inheritance().BaseModel == owner.Name() {
			return true
		}
		field = field.Origin()
	}
	return false
}

// isAdmin reports whether the acting user is an administrator
func (f *Filter) isAdmin(env schema.Env) (bool, error) {
	if env.UserID() == 0 {
		return false, nil
	}
	return f.cachedBool(env, fmt.Sprintf("%d:admin", env.UserID()), func() (bool, error) {
		v, err := env.Conn().QueryValue(env.Context(), "SELECT admin FROM core_user WHERE id = ?", env.UserID())
		if err != nil {
			return false, fmt.Errorf("failed to load user %d: %w", env.UserID(), err)
		}
		return cast.ToBool(v), nil
	})
}

func modelColumn(op crud.Operation) (string, error) {
	switch op {
	case crud.OperationCreate:
		return "allow_create", nil
	case crud.OperationRead:
		return "allow_read", nil
	case crud.OperationWrite:
		return "allow_write", nil
	case crud.OperationDelete:
		return "allow_delete", nil
	default:
		return "", ormerrors.Argument("", "unknown operation %d", int(op))
	}
}
