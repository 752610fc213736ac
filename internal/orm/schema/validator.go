package schema

import (
	"errors"
	"fmt"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
)

func definitionErr(model, format string, args ...interface{}) error {
	return ormerrors.Definition(model, format, args...)
}

func fieldDefinitionErr(field, format string, args ...interface{}) error {
	return ormerrors.Definition("", "field %s: %s", field, fmt.Sprintf(format, args...))
}

// validateModel checks a merged model against the registry
func validateModel(m *Model, r *Registry) error {
	if err := m.Err(); err != nil {
		return err
	}
	if m.tableName == "" {
		return ormerrors.Definition(m.name, "table name is empty")
	}

	for _, f := range m.Fields() {
		if err := f.Validate(); err != nil {
			var e *ormerrors.Error
			if errors.As(err, &e) {
				e.Resource = m.name
			}
			return err
		}
		if f.IsInherited() || !f.Type().IsRelational() {
			continue
		}

		target, ok := r.lookup(f.Relation())
		if !ok {
			return ormerrors.ResourceNotFound(f.Relation(), "model %s field %s refers to unknown model %q", m.name, f.Name(), f.Relation())
		}

		switch f.Type() {
		case TypeOneToMany:
			inverse, ok := target.Field(f.RelatedField())
			if !ok {
				return ormerrors.FieldAccess(target.Name(), f.RelatedField())
			}
			if inverse.Type() != TypeManyToOne || inverse.Relation() != m.name {
				return ormerrors.Definition(m.name, "field %s: %s.%s is not a many2one to %s", f.Name(), target.Name(), f.RelatedField(), m.name)
			}
		case TypeManyToMany:
			for _, linkField := range []string{f.RelatedField(), f.TargetField()} {
				lf, ok := target.Field(linkField)
				if !ok {
					return ormerrors.FieldAccess(target.Name(), linkField)
				}
				if lf.Type() != TypeManyToOne {
					return ormerrors.Definition(m.name, "field %s: link field %s.%s is not a many2one", f.Name(), target.Name(), linkField)
				}
			}
		}
	}

	for _, inh := range m.inheritances {
		rf := m.fields[inh.RelatedField]
		if rf.Type() != TypeManyToOne || rf.Relation() != inh.BaseModel {
			return ormerrors.Definition(m.name, "inheritance field %s must be a many2one to %s", inh.RelatedField, inh.BaseModel)
		}
	}

	if m.nameField != "" {
		if nf, ok := m.fields[m.nameField]; ok && nf.Type().IsCollection() {
			return ormerrors.Definition(m.name, "name field %s cannot be a collection", m.nameField)
		}
	}
	return nil
}
