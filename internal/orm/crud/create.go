package crud

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Create creates a new record with validation and lifecycle hooks and
// returns its id
func (e *Engine) Create(env schema.Env, values schema.Record) (int64, error) {
	if err := e.checkAccess(env, OperationCreate); err != nil {
		return 0, err
	}
	return e.create(env, values)
}

func (e *Engine) create(env schema.Env, values schema.Record) (int64, error) {
	e.changed(env, e.model)

	// Make a copy to avoid mutating input
	record := values.Clone()

	// 1. Defaults for omitted fields
	defaulted, err := e.applyDefaults(env, record)
	if err != nil {
		return 0, err
	}

	// 2. Before hooks may still complete the record
	if err := e.runHooks(env, schema.BeforeCreate, record); err != nil {
		return 0, hookError(schema.BeforeCreate.String(), err)
	}

	// 3. Validate and convert
	p, errs, err := e.prepare(env, record, OperationCreate, defaulted)
	if err != nil {
		return 0, err
	}
	e.missingRequired(record, errs)
	if err := errs.err(e.model.Name()); err != nil {
		return 0, err
	}

	// 4. Base records of inheritances
	if err := e.saveInherited(env, p, nil); err != nil {
		return 0, err
	}

	// 5. Interval of a new tree node
	if e.model.IsHierarchy() {
		tree := e.tree(env)
		if err := tree.Lock(env.Context(), env.Conn()); err != nil {
			return 0, err
		}
		left, err := tree.OpenGap(env.Context(), env.Conn(), int64Of(p.columns[schema.FieldParent]), 2)
		if err != nil {
			return 0, err
		}
		p.columns[schema.FieldLeft] = left
		p.columns[schema.FieldRight] = left + 1
	}

	// 6. Engine maintained columns
	if e.model.IsVersioned() {
		p.columns[schema.FieldVersion] = int64(0)
	}
	if e.model.IsAudited() {
		now := time.Now().UTC()
		p.columns[schema.FieldCreatedTime] = now
		p.columns[schema.FieldModifiedTime] = now
		p.columns[schema.FieldCreatedUser] = env.UserID()
		p.columns[schema.FieldModifiedUser] = env.UserID()
	}

	// 7. Insert
	id, err := e.insertRecord(env, p.columns)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", e.model.Name(), err)
	}

	for _, name := range p.linkFields() {
		f, _ := e.model.Field(name)
		if err := e.setLinks(env, f, id, p.links[name]); err != nil {
			return 0, err
		}
	}

	// 8. After hooks
	record[schema.FieldID] = id
	if err := e.runHooks(env, schema.AfterCreate, record); err != nil {
		return 0, hookError(schema.AfterCreate.String(), err)
	}

	e.logger.Debug("record created", zap.String("model", e.model.Name()), zap.Int64("id", id))
	return id, nil
}

// insertRecord inserts the column values in declaration order
func (e *Engine) insertRecord(env schema.Env, columns map[string]interface{}) (int64, error) {
	d := env.Conn().Dialect()
	table := d.Quote(e.model.TableName())

	var names []string
	var values []interface{}
	for _, f := range e.model.ColumnFields() {
		value, ok := columns[f.Name()]
		if !ok {
			continue
		}
		names = append(names, d.Quote(f.Name()))
		values = append(values, value)
	}

	var query string
	if len(names) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", table, d.Quote(schema.FieldID))
	} else {
		query = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			table,
			strings.Join(names, ", "),
			database.Placeholders(len(names)),
			d.Quote(schema.FieldID),
		)
	}

	v, err := env.Conn().QueryValue(env.Context(), query, values...)
	if err != nil {
		return 0, err
	}
	return cast.ToInt64E(v)
}

// saveInherited creates or updates the base records holding inherited
// values. current holds the stored related field values of an existing
// record, nil on create.
func (e *Engine) saveInherited(env schema.Env, p *prepared, current schema.Record) error {
	for _, inh := range e.model.Inheritances() {
		values := p.inherited[inh]

		ref, set := p.columns[inh.RelatedField]
		if !set && current != nil {
			ref = current[inh.RelatedField]
		}

		base, err := e.engineFor(inh.BaseModel)
		if err != nil {
			return err
		}

		if ref != nil {
			if len(values) == 0 {
				continue
			}
			if err := base.write(env, int64Of(ref), values, false); err != nil {
				return err
			}
			continue
		}

		if current != nil && len(values) == 0 {
			continue
		}
		id, err := base.create(env, values)
		if err != nil {
			return err
		}
		p.columns[inh.RelatedField] = id
	}
	return nil
}
