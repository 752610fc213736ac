package crud

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Read returns the requested fields of the records ids, in the order of ids.
// Missing ids are omitted and id is always present. A nil field list reads
// every field the caller may read.
//
// Many-to-one values are returned as []interface{}{id, displayName}, and
// one-to-many and many-to-many values as id lists.
func (e *Engine) Read(env schema.Env, ids []int64, fields []string) ([]schema.Record, error) {
	if err := e.checkAccess(env, OperationRead); err != nil {
		return nil, err
	}
	denied, err := e.deniedFields(env, OperationRead)
	if err != nil {
		return nil, err
	}

	if fields == nil {
		for _, name := range e.model.FieldNames() {
			if !denied[name] {
				fields = append(fields, name)
			}
		}
	} else {
		for _, name := range fields {
			if !e.model.HasField(name) {
				return nil, ormerrors.ArgumentOutOfRange(e.model.Name(), "unknown field %q", name)
			}
			if denied[name] {
				return nil, ormerrors.Security(e.model.Name(), fmt.Sprintf("read of field %s", name))
			}
		}
	}
	return e.read(env, ids, fields)
}

// fieldPlan groups requested fields by how they are loaded
type fieldPlan struct {
	columns    []string
	references []*schema.Field
	inverse    []*schema.Field
	links      []*schema.Field
	functional []*schema.Field
	inherited  map[*schema.Inheritance][]string
	hidden     map[string]bool
}

func (e *Engine) plan(fields []string) (*fieldPlan, error) {
	p := &fieldPlan{
		columns:   []string{schema.FieldID},
		inherited: make(map[*schema.Inheritance][]string),
		hidden:    make(map[string]bool),
	}
	requested := map[string]bool{schema.FieldID: true}
	for _, name := range fields {
		if requested[name] {
			continue
		}
		requested[name] = true

		f, ok := e.model.Field(name)
		if !ok {
			return nil, ormerrors.ArgumentOutOfRange(e.model.Name(), "unknown field %q", name)
		}
		// inherited getters must see base record ids, so inheritance wins
		switch {
		case f.IsInherited():
			inh := f.Inheritance()
			p.inherited[inh] = append(p.inherited[inh], f.Origin().Name())
		case f.IsFunctional():
			p.functional = append(p.functional, f)
		case f.Type() == schema.TypeOneToMany:
			p.inverse = append(p.inverse, f)
		case f.Type() == schema.TypeManyToMany:
			p.links = append(p.links, f)
		default:
			p.columns = append(p.columns, name)
			if f.Type() == schema.TypeManyToOne {
				p.references = append(p.references, f)
			}
		}
	}

	// related fields of inheritances are loaded even when not requested
	for inh := range p.inherited {
		if !requested[inh.RelatedField] {
			requested[inh.RelatedField] = true
			p.columns = append(p.columns, inh.RelatedField)
			p.hidden[inh.RelatedField] = true
		}
	}
	return p, nil
}

func (e *Engine) read(env schema.Env, ids []int64, fields []string) ([]schema.Record, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []schema.Record{}, nil
	}
	p, err := e.plan(fields)
	if err != nil {
		return nil, err
	}

	// 1. Columns in one query
	byID, err := e.selectColumns(env, ids, p.columns)
	if err != nil {
		return nil, err
	}
	var found []int64
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			found = append(found, id)
		}
	}
	if len(found) == 0 {
		return []schema.Record{}, nil
	}

	// 2. Inherited values through the base records
	for _, inh := range e.model.Inheritances() {
		names := p.inherited[inh]
		if len(names) == 0 {
			continue
		}
		if err := e.readInherited(env, inh, names, found, byID); err != nil {
			return nil, err
		}
	}

	// 3. Many-to-one display names, one batch per target
	if err := e.resolveReferences(env, p.references, found, byID); err != nil {
		return nil, err
	}

	// 4. Collections
	for _, f := range p.inverse {
		children, err := e.inverse(env, f, found)
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			byID[id][f.Name()] = children[id]
		}
	}
	for _, f := range p.links {
		targets, err := e.links(env, f, found)
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			byID[id][f.Name()] = targets[id]
		}
	}

	// 5. Functional fields, one getter call per batch
	for _, f := range p.functional {
		values, err := f.Getter()(env, found)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s.%s: %w", e.model.Name(), f.Name(), err)
		}
		for _, id := range found {
			byID[id][f.Name()] = values[id]
		}
	}

	records := make([]schema.Record, 0, len(found))
	for _, id := range found {
		rec := byID[id]
		for name := range p.hidden {
			delete(rec, name)
		}
		records = append(records, rec)
	}
	return records, nil
}

// selectColumns loads the column values of ids keyed by id
func (e *Engine) selectColumns(env schema.Env, ids []int64, columns []string) (map[int64]schema.Record, error) {
	d := env.Conn().Dialect()
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		strings.Join(quoted, ", "), d.Quote(e.model.TableName()), d.Quote(schema.FieldID), database.Placeholders(len(ids)))

	rows, err := env.Conn().QueryAsDictionary(env.Context(), query, database.Int64Args(ids)...)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]schema.Record, len(rows))
	for _, row := range rows {
		rec, err := e.scanRecord(row, columns)
		if err != nil {
			return nil, err
		}
		byID[rec.ID()] = rec
	}
	return byID, nil
}

// scanRecord converts a driver row into canonical field values
func (e *Engine) scanRecord(row map[string]interface{}, columns []string) (schema.Record, error) {
	rec := make(schema.Record, len(columns))
	for _, name := range columns {
		f, _ := e.model.Field(name)
		value, err := f.Type().Convert(row[name])
		if err != nil {
			return nil, ormerrors.Data(e.model.Name(), fmt.Errorf("column %s: %w", name, err))
		}
		rec[name] = value
	}
	return rec, nil
}

// readInherited copies base fields into the records through the related
// field of inh
func (e *Engine) readInherited(env schema.Env, inh *schema.Inheritance, names []string, ids []int64, byID map[int64]schema.Record) error {
	base, err := e.engineFor(inh.BaseModel)
	if err != nil {
		return err
	}

	var baseIDs []int64
	for _, id := range ids {
		if ref := int64Of(byID[id][inh.RelatedField]); ref != 0 {
			baseIDs = append(baseIDs, ref)
		}
	}
	baseRecords, err := base.read(env, baseIDs, names)
	if err != nil {
		return err
	}
	byBase := make(map[int64]schema.Record, len(baseRecords))
	for _, rec := range baseRecords {
		byBase[rec.ID()] = rec
	}

	for _, id := range ids {
		baseRec := byBase[int64Of(byID[id][inh.RelatedField])]
		for _, name := range names {
			byID[id][name] = baseRec[name]
		}
	}
	return nil
}
