package schema

import (
	"fmt"
)

// Option is a key/label pair of an enumeration field
type Option struct {
	Key   string
	Label string
}

// Field describes one field of a model. It is built with chained setters
// and becomes immutable once its model is loaded.
type Field struct {
	name          string
	typ           FieldType
	label         string
	help          string
	size          int
	required      bool
	readonly      bool
	internal      bool
	relation      string
	relatedField  string
	targetField   string
	onDelete      OnDeleteAction
	options       []Option
	getter        ValueGetter
	defaultGetter DefaultGetter

	// origin is the base model field this field was inherited from
	origin      *Field
	inheritance *Inheritance

	frozen bool
}

// NewField creates a field descriptor
func NewField(name string, typ FieldType) *Field {
	return &Field{
		name:  name,
		typ:   typ,
		label: name,
	}
}

func (f *Field) mutate() {
	if f.frozen {
		panic(fmt.Sprintf("schema: field %q is frozen", f.name))
	}
}

// SetLabel sets the display label
func (f *Field) SetLabel(label string) *Field {
	f.mutate()
	f.label = label
	return f
}

// SetHelp sets the help text
func (f *Field) SetHelp(help string) *Field {
	f.mutate()
	f.help = help
	return f
}

// SetSize sets the maximum length of a chars field
func (f *Field) SetSize(size int) *Field {
	f.mutate()
	f.size = size
	return f
}

// Required marks the field as required
func (f *Field) Required() *Field {
	f.mutate()
	f.required = true
	return f
}

// NotRequired clears the required flag
func (f *Field) NotRequired() *Field {
	f.mutate()
	f.required = false
	return f
}

// Readonly marks the field as readonly for callers
func (f *Field) Readonly() *Field {
	f.mutate()
	f.readonly = true
	return f
}

// NotReadonly clears the readonly flag
func (f *Field) NotReadonly() *Field {
	f.mutate()
	f.readonly = false
	return f
}

// SetRelation sets the target model of a relational field
func (f *Field) SetRelation(model string) *Field {
	f.mutate()
	f.relation = model
	return f
}

// SetRelatedField sets the inverse field of a one-to-many field, or the link
// model field pointing back to this model for a many-to-many field
func (f *Field) SetRelatedField(field string) *Field {
	f.mutate()
	f.relatedField = field
	return f
}

// SetTargetField sets the link model field pointing to the target of a
// many-to-many field
func (f *Field) SetTargetField(field string) *Field {
	f.mutate()
	f.targetField = field
	return f
}

// OnDelete sets the referential action of a many-to-one field
func (f *Field) OnDelete(action OnDeleteAction) *Field {
	f.mutate()
	f.onDelete = action
	return f
}

// SetOptions sets the allowed values of an enumeration field
func (f *Field) SetOptions(options ...Option) *Field {
	f.mutate()
	f.options = append([]Option(nil), options...)
	return f
}

// ValueGetter makes the field functional. Functional fields are never stored.
func (f *Field) ValueGetter(getter ValueGetter) *Field {
	f.mutate()
	f.getter = getter
	return f
}

// DefaultValueGetter sets the function producing the default value
func (f *Field) DefaultValueGetter(getter DefaultGetter) *Field {
	f.mutate()
	f.defaultGetter = getter
	return f
}

// SetDefault sets a constant default value
func (f *Field) SetDefault(value interface{}) *Field {
	return f.DefaultValueGetter(Constant(value))
}

func (f *Field) markInternal() *Field {
	f.mutate()
	f.internal = true
	return f
}

// Name returns the field name
func (f *Field) Name() string { return f.name }

// Type returns the field type
func (f *Field) Type() FieldType { return f.typ }

// Label returns the display label
func (f *Field) Label() string { return f.label }

// Help returns the help text
func (f *Field) Help() string { return f.help }

// Size returns the maximum length, 0 when unbounded
func (f *Field) Size() int { return f.size }

// IsRequired reports whether a value must be present at creation
func (f *Field) IsRequired() bool { return f.required }

// IsReadonly reports whether callers may not write the field.
// Functional fields are implicitly readonly.
func (f *Field) IsReadonly() bool { return f.readonly || f.IsFunctional() }

// IsInternal reports whether the field is maintained by the engine
func (f *Field) IsInternal() bool { return f.internal }

// Relation returns the target model of a relational field
func (f *Field) Relation() string { return f.relation }

// RelatedField returns the inverse field name
func (f *Field) RelatedField() string { return f.relatedField }

// TargetField returns the link field pointing to the many-to-many target
func (f *Field) TargetField() string { return f.targetField }

// OnDeleteAction returns the referential action
func (f *Field) OnDeleteAction() OnDeleteAction { return f.onDelete }

// Options returns the allowed enumeration values
func (f *Field) Options() []Option { return f.options }

// HasOption reports whether key is an allowed enumeration value
func (f *Field) HasOption(key string) bool {
	for _, o := range f.options {
		if o.Key == key {
			return true
		}
	}
	return false
}

// Getter returns the value getter of a functional field.
// Inherited fields delegate to their origin.
func (f *Field) Getter() ValueGetter {
	if f.getter == nil && f.origin != nil {
		return f.origin.Getter()
	}
	return f.getter
}

// DefaultGetter returns the default getter. Inherited fields delegate to
// their origin.
func (f *Field) DefaultGetter() DefaultGetter {
	if f.defaultGetter == nil && f.origin != nil {
		return f.origin.DefaultGetter()
	}
	return f.defaultGetter
}

// IsFunctional reports whether the field is computed on read
func (f *Field) IsFunctional() bool { return f.Getter() != nil }

// IsInherited reports whether the field was merged from a base model
func (f *Field) IsInherited() bool { return f.origin != nil }

// Origin returns the base model field of an inherited field
func (f *Field) Origin() *Field { return f.origin }

// Inheritance returns the inheritance an inherited field came through
func (f *Field) Inheritance() *Inheritance { return f.inheritance }

// IsColumn reports whether the field is stored as a column of the model's table
func (f *Field) IsColumn() bool {
	if f.IsFunctional() || f.IsInherited() {
		return false
	}
	return !f.typ.IsCollection()
}

// IsFrozen reports whether the field can no longer be changed
func (f *Field) IsFrozen() bool { return f.frozen }

// Validate checks the declaration of the field
func (f *Field) Validate() error {
	if f.name == "" {
		return fieldDefinitionErr("", "name is empty")
	}
	if f.typ.IsRelational() && f.relation == "" {
		return fieldDefinitionErr(f.name, "relational field requires a relation")
	}
	if f.typ.IsCollection() && f.relatedField == "" {
		return fieldDefinitionErr(f.name, "%s field requires a related field", f.typ)
	}
	if f.typ == TypeManyToMany && f.targetField == "" {
		return fieldDefinitionErr(f.name, "many2many field requires a target field")
	}
	if f.typ == TypeEnumeration && len(f.options) == 0 {
		return fieldDefinitionErr(f.name, "enumeration field requires options")
	}
	if f.size < 0 {
		return fieldDefinitionErr(f.name, "size must not be negative")
	}
	if f.required && f.readonly && !f.internal && f.DefaultGetter() == nil && f.Getter() == nil {
		return fieldDefinitionErr(f.name, "required readonly field has no default or getter")
	}
	return nil
}

// inherit creates the inherited counterpart of a base field
func (f *Field) inherit(inh *Inheritance) *Field {
	return &Field{
		name:         f.name,
		typ:          f.typ,
		label:        f.label,
		help:         f.help,
		size:         f.size,
		required:     f.required,
		readonly:     f.readonly,
		relation:     f.relation,
		relatedField: f.relatedField,
		targetField:  f.targetField,
		onDelete:     f.onDelete,
		options:      f.options,
		origin:       f,
		inheritance:  inh,
	}
}
