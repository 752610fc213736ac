package crud

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Write updates record id with optimistic locking. Versioned models require
// the _version the caller last read; a missing or stale version fails with a
// concurrency error and changes nothing. System fields other than _version
// are ignored.
func (e *Engine) Write(env schema.Env, id int64, values schema.Record) error {
	if err := e.checkAccess(env, OperationWrite); err != nil {
		return err
	}
	return e.write(env, id, values, true)
}

func (e *Engine) write(env schema.Env, id int64, values schema.Record, checkVersion bool) error {
	name := e.model.Name()
	e.changed(env, e.model)

	// 1. Load the stored state used for locking and relinking
	current, err := e.current(env, id)
	if err != nil {
		return err
	}

	// 2. Check optimistic locking
	var version int64
	if e.model.IsVersioned() {
		version = cast.ToInt64(current[schema.FieldVersion])
		if checkVersion {
			presented, ok := values[schema.FieldVersion]
			if !ok || presented == nil {
				return ormerrors.Concurrency(name, id)
			}
			v, err := cast.ToInt64E(presented)
			if err != nil || v != version {
				return ormerrors.Concurrency(name, id)
			}
		}
	}

	// 3. Before hooks; prepare ignores id and _version
	record := values.Clone()
	record[schema.FieldID] = id
	if err := e.runHooks(env, schema.BeforeUpdate, record); err != nil {
		return hookError(schema.BeforeUpdate.String(), err)
	}

	// 4. Validate and convert
	p, errs, err := e.prepare(env, record, OperationWrite, nil)
	if err != nil {
		return err
	}
	if err := errs.err(name); err != nil {
		return err
	}

	if err := e.saveInherited(env, p, current); err != nil {
		return err
	}

	// 5. Reparent tree nodes
	if e.model.IsHierarchy() {
		if parent, ok := p.columns[schema.FieldParent]; ok {
			if int64Of(parent) != int64Of(current[schema.FieldParent]) {
				tree := e.tree(env)
				if err := tree.Lock(env.Context(), env.Conn()); err != nil {
					return err
				}
				if err := tree.Move(env.Context(), env.Conn(), id, int64Of(parent)); err != nil {
					return err
				}
			}
			delete(p.columns, schema.FieldParent)
		}
	}

	// 6. Update in database
	if err := e.updateRecord(env, id, version, p.columns); err != nil {
		return err
	}

	for _, field := range p.linkFields() {
		f, _ := e.model.Field(field)
		if err := e.setLinks(env, f, id, p.links[field]); err != nil {
			return err
		}
	}

	// 7. After hooks
	if err := e.runHooks(env, schema.AfterUpdate, record); err != nil {
		return hookError(schema.AfterUpdate.String(), err)
	}

	e.logger.Debug("record updated", zap.String("model", name), zap.Int64("id", id))
	return nil
}

// updateRecord writes the column values and bumps the version. For
// versioned models the update only applies while _version still equals
// version.
func (e *Engine) updateRecord(env schema.Env, id, version int64, columns map[string]interface{}) error {
	d := env.Conn().Dialect()

	var sets []string
	var args []interface{}
	for _, f := range e.model.ColumnFields() {
		value, ok := columns[f.Name()]
		if !ok || f.IsInternal() {
			continue
		}
		sets = append(sets, d.Quote(f.Name())+" = ?")
		args = append(args, value)
	}
	if e.model.IsAudited() {
		sets = append(sets, d.Quote(schema.FieldModifiedTime)+" = ?", d.Quote(schema.FieldModifiedUser)+" = ?")
		args = append(args, time.Now().UTC(), env.UserID())
	}
	where := d.Quote(schema.FieldID) + " = ?"
	args = append(args, id)
	if e.model.IsVersioned() {
		v := d.Quote(schema.FieldVersion)
		sets = append(sets, fmt.Sprintf("%s = %s + 1", v, v))
		where += " AND " + v + " = ?"
		args = append(args, version)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", d.Quote(e.model.TableName()), strings.Join(sets, ", "), where)
	n, err := env.Conn().Execute(env.Context(), query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", e.model.Name(), id, err)
	}
	if n == 0 {
		if e.model.IsVersioned() {
			return ormerrors.Concurrency(e.model.Name(), id)
		}
		return ormerrors.ResourceNotFound(e.model.Name(), "record %d not found", id)
	}
	return nil
}

// current loads the stored columns write depends on
func (e *Engine) current(env schema.Env, id int64) (schema.Record, error) {
	d := env.Conn().Dialect()

	columns := []string{schema.FieldID}
	if e.model.IsVersioned() {
		columns = append(columns, schema.FieldVersion)
	}
	if e.model.IsHierarchy() {
		columns = append(columns, schema.FieldParent)
	}
	for _, inh := range e.model.Inheritances() {
		columns = append(columns, inh.RelatedField)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	rows, err := env.Conn().QueryAsDictionary(env.Context(),
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(quoted, ", "), d.Quote(e.model.TableName()), d.Quote(schema.FieldID)),
		id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ormerrors.ResourceNotFound(e.model.Name(), "record %d not found", id)
	}
	return schema.Record(rows[0]), nil
}

// existing returns the ids among ids that are stored, ascending
func (e *Engine) existing(env schema.Env, ids []int64) ([]int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	d := env.Conn().Dialect()
	return env.Conn().QueryIDs(env.Context(),
		fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[1]s IN (%[3]s) ORDER BY %[1]s",
			d.Quote(schema.FieldID), d.Quote(e.model.TableName()), database.Placeholders(len(ids))),
		database.Int64Args(ids)...)
}
