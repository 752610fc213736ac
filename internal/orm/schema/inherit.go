package schema

import (
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
)

// Merge folds the fields of every base model into m. Fields m already
// declares win; merged fields reference the base descriptor and are stored
// in the base table, reached through the inheritance's related field.
// Merging an already merged model adds nothing.
func Merge(m *Model, container ResourceContainer) error {
	for _, inh := range m.inheritances {
		base, err := container.GetResource(inh.BaseModel)
		if err != nil {
			return ormerrors.ResourceNotFound(inh.BaseModel, "cannot find base model %q of %s", inh.BaseModel, m.name)
		}

		if !m.HasField(inh.RelatedField) {
			return ormerrors.FieldAccess(m.name, inh.RelatedField)
		}

		for _, bf := range base.Fields() {
			if bf.IsInternal() || m.HasField(bf.Name()) {
				continue
			}
			m.Add(bf.inherit(inh))
		}
	}
	m.merged = true
	return nil
}

// IsMerged reports whether inheritances have been merged
func (m *Model) IsMerged() bool { return m.merged }
