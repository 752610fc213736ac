package crud

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// uniqueIDs drops zero and repeated ids, keeping first occurrences in order
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// idList converts a caller supplied list of ids, or of (id, name) pairs
func idList(v interface{}) ([]int64, error) {
	if v == nil {
		return []int64{}, nil
	}
	if ids, ok := v.([]int64); ok {
		return uniqueIDs(ids), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%#v is not a list of ids", v)
	}
	ids := make([]int64, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		id, err := cast.ToInt64E(reduceReference(rv.Index(i).Interface()))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return uniqueIDs(ids), nil
}

// linkModel returns the link model of a many2many field
func (e *Engine) linkModel(f *schema.Field) (*schema.Model, error) {
	return e.registry.GetResource(f.Relation())
}

// links loads the target ids of a many2many field for a batch of records
func (e *Engine) links(env schema.Env, f *schema.Field, ids []int64) (map[int64][]int64, error) {
	link, err := e.linkModel(f)
	if err != nil {
		return nil, err
	}
	d := env.Conn().Dialect()
	rows, err := env.Conn().QueryAsDictionary(env.Context(),
		fmt.Sprintf("SELECT %[1]s AS src, %[2]s AS dst FROM %[3]s WHERE %[1]s IN (%[4]s) ORDER BY %[5]s",
			d.Quote(f.RelatedField()), d.Quote(f.TargetField()), d.Quote(link.TableName()),
			database.Placeholders(len(ids)), d.Quote(schema.FieldID)),
		database.Int64Args(ids)...)
	if err != nil {
		return nil, err
	}

	out := make(map[int64][]int64, len(ids))
	for _, id := range ids {
		out[id] = []int64{}
	}
	for _, row := range rows {
		src := cast.ToInt64(row["src"])
		out[src] = append(out[src], cast.ToInt64(row["dst"]))
	}
	return out, nil
}

// setLinks replaces the targets of a many2many field of record id
func (e *Engine) setLinks(env schema.Env, f *schema.Field, id int64, targets []int64) error {
	link, err := e.linkModel(f)
	if err != nil {
		return err
	}
	e.changed(env, link)
	d := env.Conn().Dialect()
	table := d.Quote(link.TableName())
	related, target := d.Quote(f.RelatedField()), d.Quote(f.TargetField())

	if _, err := env.Conn().Execute(env.Context(),
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, related), id); err != nil {
		return err
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", table, related, target)
	for _, t := range targets {
		if _, err := env.Conn().Execute(env.Context(), insert, id, t); err != nil {
			return fmt.Errorf("failed to link %s %d to %d: %w", f.Name(), id, t, err)
		}
	}
	return nil
}

// removeLinks deletes the link rows of every many2many field of ids
func (e *Engine) removeLinks(env schema.Env, ids []int64) error {
	d := env.Conn().Dialect()
	for _, f := range e.model.Fields() {
		if f.Type() != schema.TypeManyToMany || f.IsInherited() {
			continue
		}
		link, err := e.linkModel(f)
		if err != nil {
			return err
		}
		e.changed(env, link)
		if _, err := env.Conn().Execute(env.Context(),
			fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
				d.Quote(link.TableName()), d.Quote(f.RelatedField()), database.Placeholders(len(ids))),
			database.Int64Args(ids)...); err != nil {
			return err
		}
	}
	return nil
}

// resolveReferences replaces many2one ids by (id, display name) pairs,
// fetching names once per target model
func (e *Engine) resolveReferences(env schema.Env, fields []*schema.Field, ids []int64, byID map[int64]schema.Record) error {
	wanted := make(map[string][]int64)
	for _, f := range fields {
		for _, id := range ids {
			if ref := int64Of(byID[id][f.Name()]); ref != 0 {
				wanted[f.Relation()] = append(wanted[f.Relation()], ref)
			}
		}
	}

	names := make(map[string]map[int64]string, len(wanted))
	for target, refs := range wanted {
		te, err := e.engineFor(target)
		if err != nil {
			return err
		}
		if names[target], err = te.names(env, refs); err != nil {
			return err
		}
	}

	for _, f := range fields {
		for _, id := range ids {
			ref := int64Of(byID[id][f.Name()])
			if ref == 0 {
				byID[id][f.Name()] = nil
				continue
			}
			display, ok := names[f.Relation()][ref]
			if !ok {
				display = fallbackName(f.Relation(), ref)
			}
			byID[id][f.Name()] = []interface{}{ref, display}
		}
	}
	return nil
}

// names returns the display names of the stored records among ids
func (e *Engine) names(env schema.Env, ids []int64) (map[int64]string, error) {
	nameField := e.model.NameField()
	out := make(map[int64]string, len(ids))

	if nameField == "" {
		found, err := e.existing(env, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			out[id] = fallbackName(e.model.Name(), id)
		}
		return out, nil
	}

	records, err := e.read(env, ids, []string{nameField})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		value := rec[nameField]
		if pair, ok := value.([]interface{}); ok && len(pair) == 2 {
			value = pair[1]
		}
		if value == nil {
			out[rec.ID()] = fallbackName(e.model.Name(), rec.ID())
			continue
		}
		out[rec.ID()] = cast.ToString(value)
	}
	return out, nil
}

func fallbackName(model string, id int64) string {
	return fmt.Sprintf("%s,%d", model, id)
}

// inverse loads the child ids of a one2many field for a batch of records.
// Children are found with one search so record rules still apply, in the
// child model's order.
func (e *Engine) inverse(env schema.Env, f *schema.Field, ids []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(ids))
	for _, id := range ids {
		out[id] = []int64{}
	}

	in := make([]interface{}, len(ids))
	for i, id := range ids {
		in[i] = id
	}
	children, err := env.Search(f.Relation(), []interface{}{[]interface{}{f.RelatedField(), "in", in}}, nil, 0, 0)
	if err != nil || len(children) == 0 {
		return out, err
	}

	parents, err := e.parentsOf(env, f, children)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if parent, ok := parents[child]; ok {
			out[parent] = append(out[parent], child)
		}
	}
	return out, nil
}

// parentsOf maps child ids to the value of the inverse field's related field
func (e *Engine) parentsOf(env schema.Env, f *schema.Field, children []int64) (map[int64]int64, error) {
	child, err := e.registry.GetResource(f.Relation())
	if err != nil {
		return nil, err
	}
	related, ok := child.Field(f.RelatedField())
	if !ok {
		return nil, fmt.Errorf("%s: unknown related field %s", child.Name(), f.RelatedField())
	}

	out := make(map[int64]int64, len(children))
	if !related.IsColumn() {
		records, err := env.Read(child.Name(), children, []string{related.Name()})
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			out[rec.ID()] = int64Of(rec[related.Name()])
		}
		return out, nil
	}

	d := env.Conn().Dialect()
	rows, err := env.Conn().QueryAsDictionary(env.Context(),
		fmt.Sprintf("SELECT %s AS id, %s AS parent FROM %s WHERE %s IN (%s)",
			d.Quote(schema.FieldID), d.Quote(related.Name()), d.Quote(child.TableName()),
			d.Quote(schema.FieldID), database.Placeholders(len(children))),
		database.Int64Args(children)...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[cast.ToInt64(row["id"])] = cast.ToInt64(row["parent"])
	}
	return out, nil
}
