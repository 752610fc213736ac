package crud

import (
	"fmt"
	"sort"

	"github.com/spf13/cast"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// prepared holds caller values split by where they are stored
type prepared struct {
	// columns holds converted values of the model's own columns
	columns map[string]interface{}
	// inherited holds raw values of inherited fields, keyed by inheritance
	// and named after the base field
	inherited map[*schema.Inheritance]schema.Record
	// links holds the target ids of many2many fields
	links map[string][]int64
}

func (p *prepared) linkFields() []string {
	names := make([]string, 0, len(p.links))
	for name := range p.links {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// prepare checks and converts values for op. Validation failures are
// collected in the returned fieldErrors; other failures abort. Keys in
// defaulted were filled by the engine and skip the readonly check.
func (e *Engine) prepare(env schema.Env, values schema.Record, op Operation, defaulted map[string]bool) (*prepared, fieldErrors, error) {
	name := e.model.Name()
	denied, err := e.deniedFields(env, op)
	if err != nil {
		return nil, nil, err
	}

	p := &prepared{
		columns:   make(map[string]interface{}),
		inherited: make(map[*schema.Inheritance]schema.Record),
		links:     make(map[string][]int64),
	}
	errs := fieldErrors{}

	for _, key := range sortedKeys(values) {
		value := values[key]
		f, ok := e.model.Field(key)
		if !ok {
			return nil, nil, ormerrors.ArgumentOutOfRange(name, "unknown field %q", key)
		}
		if f.IsInternal() {
			if op == OperationCreate {
				errs.add(key, "system field cannot be set")
			}
			continue
		}
		if denied[key] {
			return nil, nil, ormerrors.Security(name, fmt.Sprintf("%s of field %s", op, key))
		}
		if f.IsReadonly() && !env.Internal() && !defaulted[key] {
			errs.add(key, "field is readonly")
			continue
		}

		switch {
		case f.IsInherited():
			inh := f.Inheritance()
			if p.inherited[inh] == nil {
				p.inherited[inh] = schema.Record{}
			}
			p.inherited[inh][f.Origin().Name()] = value
		case f.Type() == schema.TypeOneToMany:
			errs.add(key, "one2many values are written through %s", f.Relation())
		case f.Type() == schema.TypeManyToMany:
			ids, err := idList(value)
			if err != nil {
				errs.add(key, "%v", err)
				continue
			}
			p.links[key] = ids
		default:
			converted, err := convertValue(f, value)
			if err != nil {
				errs.add(key, "%v", err)
				continue
			}
			p.columns[key] = converted
		}
	}
	return p, errs, nil
}

// convertValue turns a caller value into the canonical value of a column
func convertValue(f *schema.Field, value interface{}) (interface{}, error) {
	if f.Type() == schema.TypeManyToOne {
		value = reduceReference(value)
	}
	converted, err := f.Type().Convert(value)
	if err != nil {
		return nil, err
	}

	switch f.Type() {
	case schema.TypeManyToOne:
		if id, ok := converted.(int64); ok && id == 0 {
			return nil, nil
		}
	case schema.TypeChars:
		if s, ok := converted.(string); ok && f.Size() > 0 && len([]rune(s)) > f.Size() {
			return nil, fmt.Errorf("value exceeds %d characters", f.Size())
		}
	case schema.TypeEnumeration:
		if s, ok := converted.(string); ok && !f.HasOption(s) {
			return nil, fmt.Errorf("%q is not an allowed value", s)
		}
	}
	return converted, nil
}

// applyDefaults fills omitted fields that declare a default and returns
// their names. Inherited fields get theirs when the base record is created.
func (e *Engine) applyDefaults(env schema.Env, record schema.Record) (map[string]bool, error) {
	defaulted := make(map[string]bool)
	for _, f := range e.model.Fields() {
		if _, present := record[f.Name()]; present {
			continue
		}
		if f.IsInternal() || f.IsInherited() || f.IsFunctional() || f.Type() == schema.TypeOneToMany {
			continue
		}
		getter := f.DefaultGetter()
		if getter == nil {
			continue
		}
		value, err := getter(env)
		if err != nil {
			return nil, fmt.Errorf("default of %s: %w", f.Name(), err)
		}
		record[f.Name()] = value
		defaulted[f.Name()] = true
	}
	return defaulted, nil
}

// missingRequired reports required fields without a value. Related fields
// of inheritances are filled by creating the base record, and inherited
// fields are only required when no existing base record is referenced.
func (e *Engine) missingRequired(record schema.Record, errs fieldErrors) {
	related := make(map[string]bool)
	for _, inh := range e.model.Inheritances() {
		related[inh.RelatedField] = true
	}

	for _, f := range e.model.Fields() {
		if !f.IsRequired() || f.IsInternal() || f.IsFunctional() || related[f.Name()] {
			continue
		}
		if f.IsInherited() && record[f.Inheritance().RelatedField] != nil {
			continue
		}
		if record[f.Name()] == nil {
			errs.add(f.Name(), "required field is missing")
		}
	}
}

// reduceReference turns an (id, display name) pair into the id
func reduceReference(v interface{}) interface{} {
	if pair, ok := v.([]interface{}); ok && len(pair) == 2 {
		return pair[0]
	}
	return v
}

func sortedKeys(record schema.Record) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// int64Of converts a stored id, nil to 0
func int64Of(v interface{}) int64 {
	return cast.ToInt64(reduceReference(v))
}
