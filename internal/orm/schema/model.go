package schema

import (
	"fmt"
	"strings"
)

// Internal field names
const (
	FieldID           = "id"
	FieldVersion      = "_version"
	FieldCreatedTime  = "_created_time"
	FieldModifiedTime = "_modified_time"
	FieldCreatedUser  = "_created_user"
	FieldModifiedUser = "_modified_user"
	FieldParent       = "parent"
	FieldLeft         = "_left"
	FieldRight        = "_right"
	FieldChildren     = "_children"
	FieldDescendants  = "_descendants"
)

// Inheritance links a derived model to a base model through a many-to-one
// field of the derived model
type Inheritance struct {
	BaseModel    string
	RelatedField string
}

// Model is the metadata of one business entity
type Model struct {
	name          string
	module        string
	label         string
	tableName     string
	nameField     string
	fields        map[string]*Field
	order         []string
	inheritances  []*Inheritance
	hierarchy     bool
	autoMigration bool
	versioned     bool
	audited       bool
	canCreate     bool
	canRead       bool
	canWrite      bool
	canDelete     bool
	hooks         map[HookType][]Hook
	methods       map[string]MethodFunc
	methodOrder   []string

	errs    []error
	merged  bool
	loaded  bool
	columns []*Field
}

// NewModel creates a model with a dotted name such as "core.user".
// The module defaults to the first name segment and the table name to the
// name with dots replaced by underscores.
func NewModel(name string) *Model {
	module := name
	if i := strings.Index(name, "."); i > 0 {
		module = name[:i]
	}

	m := &Model{
		name:          name,
		module:        module,
		label:         name,
		tableName:     strings.ReplaceAll(name, ".", "_"),
		nameField:     "name",
		fields:        make(map[string]*Field),
		autoMigration: true,
		versioned:     true,
		audited:       true,
		canCreate:     true,
		canRead:       true,
		canWrite:      true,
		canDelete:     true,
		hooks:         make(map[HookType][]Hook),
		methods:       make(map[string]MethodFunc),
	}
	m.Add(NewField(FieldID, TypeID).Required().Readonly().markInternal())
	return m
}

func (m *Model) mutate() {
	if m.loaded {
		panic(fmt.Sprintf("schema: model %q is loaded", m.name))
	}
}

// SetModule sets the owning module
func (m *Model) SetModule(module string) *Model {
	m.mutate()
	m.module = module
	return m
}

// SetLabel sets the display label
func (m *Model) SetLabel(label string) *Model {
	m.mutate()
	m.label = label
	return m
}

// SetTableName overrides the table name
func (m *Model) SetTableName(table string) *Model {
	m.mutate()
	m.tableName = table
	return m
}

// SetNameField sets the field used as display name
func (m *Model) SetNameField(field string) *Model {
	m.mutate()
	m.nameField = field
	return m
}

// Hierarchical stores the model as a nested-set tree
func (m *Model) Hierarchical() *Model {
	m.mutate()
	m.hierarchy = true
	return m
}

// SetAutoMigration controls whether missing columns are added on load
func (m *Model) SetAutoMigration(enabled bool) *Model {
	m.mutate()
	m.autoMigration = enabled
	return m
}

// SetVersioned controls the _version column
func (m *Model) SetVersioned(enabled bool) *Model {
	m.mutate()
	m.versioned = enabled
	return m
}

// SetAudited controls the creation/modification audit columns
func (m *Model) SetAudited(enabled bool) *Model {
	m.mutate()
	m.audited = enabled
	return m
}

// SetAccess sets which generic operations the model exposes
func (m *Model) SetAccess(create, read, write, delete bool) *Model {
	m.mutate()
	m.canCreate, m.canRead, m.canWrite, m.canDelete = create, read, write, delete
	return m
}

// Inherit declares a base model whose fields are reachable through
// relatedField. A base can be inherited only once.
func (m *Model) Inherit(baseModel, relatedField string) *Model {
	m.mutate()
	for _, inh := range m.inheritances {
		if inh.BaseModel == baseModel {
			m.errs = append(m.errs, definitionErr(m.name, "duplicated inheritance: %q", baseModel))
			return m
		}
	}
	m.inheritances = append(m.inheritances, &Inheritance{BaseModel: baseModel, RelatedField: relatedField})
	return m
}

// Hook registers a lifecycle hook
func (m *Model) Hook(typ HookType, hook Hook) *Model {
	m.mutate()
	m.hooks[typ] = append(m.hooks[typ], hook)
	return m
}

// Method registers a model-specific service method
func (m *Model) Method(name string, fn MethodFunc) *Model {
	m.mutate()
	if _, exists := m.methods[name]; exists {
		m.errs = append(m.errs, definitionErr(m.name, "duplicated method: %q", name))
		return m
	}
	m.methods[name] = fn
	m.methodOrder = append(m.methodOrder, name)
	return m
}

// Add appends a field. Declaring the same name twice is a definition error.
func (m *Model) Add(f *Field) *Field {
	m.mutate()
	if _, exists := m.fields[f.name]; exists {
		m.errs = append(m.errs, definitionErr(m.name, "duplicated field: %q", f.name))
		return f
	}
	m.fields[f.name] = f
	m.order = append(m.order, f.name)
	return f
}

// Integer adds an integer field
func (m *Model) Integer(name string) *Field { return m.Add(NewField(name, TypeInteger)) }

// BigInteger adds a 64-bit integer field
func (m *Model) BigInteger(name string) *Field { return m.Add(NewField(name, TypeBigInteger)) }

// Boolean adds a boolean field
func (m *Model) Boolean(name string) *Field { return m.Add(NewField(name, TypeBoolean)) }

// Chars adds a bounded string field
func (m *Model) Chars(name string) *Field { return m.Add(NewField(name, TypeChars)) }

// Text adds an unbounded string field
func (m *Model) Text(name string) *Field { return m.Add(NewField(name, TypeText)) }

// DateTime adds a timestamp field
func (m *Model) DateTime(name string) *Field { return m.Add(NewField(name, TypeDateTime)) }

// Decimal adds a fixed-point field
func (m *Model) Decimal(name string) *Field { return m.Add(NewField(name, TypeDecimal)) }

// Money adds a monetary field
func (m *Model) Money(name string) *Field { return m.Add(NewField(name, TypeMoney)) }

// Float adds a floating point field
func (m *Model) Float(name string) *Field { return m.Add(NewField(name, TypeFloat)) }

// Binary adds a binary field
func (m *Model) Binary(name string) *Field { return m.Add(NewField(name, TypeBinary)) }

// Enumeration adds a field restricted to options
func (m *Model) Enumeration(name string, options ...Option) *Field {
	return m.Add(NewField(name, TypeEnumeration)).SetOptions(options...)
}

// ManyToOne adds a reference to one record of relation
func (m *Model) ManyToOne(name, relation string) *Field {
	return m.Add(NewField(name, TypeManyToOne)).SetRelation(relation)
}

// OneToMany adds the inverse of relation's many-to-one relatedField
func (m *Model) OneToMany(name, relation, relatedField string) *Field {
	return m.Add(NewField(name, TypeOneToMany)).SetRelation(relation).SetRelatedField(relatedField)
}

// ManyToMany adds a many-to-many reference through the link model relation,
// whose relatedField points back to this model and targetField to the target
func (m *Model) ManyToMany(name, relation, relatedField, targetField string) *Field {
	return m.Add(NewField(name, TypeManyToMany)).
		SetRelation(relation).
		SetRelatedField(relatedField).
		SetTargetField(targetField)
}

// Name returns the model name
func (m *Model) Name() string { return m.name }

// Module returns the owning module
func (m *Model) Module() string { return m.module }

// Label returns the display label
func (m *Model) Label() string { return m.label }

// TableName returns the table the model is stored in
func (m *Model) TableName() string { return m.tableName }

// NameField returns the display name field, or "" when the model has none
func (m *Model) NameField() string {
	if _, ok := m.fields[m.nameField]; ok {
		return m.nameField
	}
	return ""
}

// IsHierarchy reports whether the model is a nested-set tree
func (m *Model) IsHierarchy() bool { return m.hierarchy }

// AutoMigration reports whether missing columns are added on load
func (m *Model) AutoMigration() bool { return m.autoMigration }

// IsVersioned reports whether the model carries _version
func (m *Model) IsVersioned() bool { return m.versioned }

// IsAudited reports whether the model carries audit columns
func (m *Model) IsAudited() bool { return m.audited }

// CanCreate reports whether Create is exposed
func (m *Model) CanCreate() bool { return m.canCreate }

// CanRead reports whether Read, Search and Count are exposed
func (m *Model) CanRead() bool { return m.canRead }

// CanWrite reports whether Write is exposed
func (m *Model) CanWrite() bool { return m.canWrite }

// CanDelete reports whether Delete is exposed
func (m *Model) CanDelete() bool { return m.canDelete }

// Inheritances returns the declared inheritances
func (m *Model) Inheritances() []*Inheritance { return m.inheritances }

// Hooks returns the hooks registered for typ
func (m *Model) Hooks(typ HookType) []Hook { return m.hooks[typ] }

// Methods returns the names of model-specific methods in declaration order
func (m *Model) Methods() []string { return m.methodOrder }

// LookupMethod returns a model-specific method
func (m *Model) LookupMethod(name string) (MethodFunc, bool) {
	fn, ok := m.methods[name]
	return fn, ok
}

// Field returns a field by name
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// HasField reports whether the model declares name
func (m *Model) HasField(name string) bool {
	_, ok := m.fields[name]
	return ok
}

// Fields returns all fields in declaration order
func (m *Model) Fields() []*Field {
	out := make([]*Field, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.fields[name])
	}
	return out
}

// FieldNames returns all field names in declaration order
func (m *Model) FieldNames() []string {
	return append([]string(nil), m.order...)
}

// ColumnFields returns the fields stored as columns, in declaration order
func (m *Model) ColumnFields() []*Field {
	if m.columns != nil {
		return m.columns
	}
	var out []*Field
	for _, f := range m.Fields() {
		if f.IsColumn() {
			out = append(out, f)
		}
	}
	if m.loaded {
		m.columns = out
	}
	return out
}

// IsLoaded reports whether the model has been loaded by a registry
func (m *Model) IsLoaded() bool { return m.loaded }

// Err returns the first declaration error recorded on the model
func (m *Model) Err() error {
	if len(m.errs) > 0 {
		return m.errs[0]
	}
	return nil
}

// addInternalFields adds the engine-maintained fields implied by the flags
func (m *Model) addInternalFields() {
	if m.versioned && !m.HasField(FieldVersion) {
		m.Add(NewField(FieldVersion, TypeBigInteger).Required().Readonly().markInternal()).SetDefault(int64(0))
	}
	if m.audited && !m.HasField(FieldCreatedTime) {
		m.Add(NewField(FieldCreatedTime, TypeDateTime).Readonly().markInternal())
		m.Add(NewField(FieldModifiedTime, TypeDateTime).Readonly().markInternal())
		m.Add(NewField(FieldCreatedUser, TypeBigInteger).Readonly().markInternal())
		m.Add(NewField(FieldModifiedUser, TypeBigInteger).Readonly().markInternal())
	}
	if m.hierarchy {
		if !m.HasField(FieldParent) {
			m.ManyToOne(FieldParent, m.name).SetLabel("Parent").OnDelete(OnDeleteCascade)
		}
		if !m.HasField(FieldLeft) {
			m.Add(NewField(FieldLeft, TypeBigInteger).Readonly().markInternal())
			m.Add(NewField(FieldRight, TypeBigInteger).Readonly().markInternal())
			m.OneToMany(FieldChildren, m.name, FieldParent).SetLabel("Children").Readonly().markInternal()
			m.OneToMany(FieldDescendants, m.name, FieldParent).
				SetLabel("Descendants").
				ValueGetter(descendantsGetter(m)).
				markInternal()
		}
	}
}

func (m *Model) freeze() {
	for _, f := range m.fields {
		f.frozen = true
	}
	m.loaded = true
	m.columns = nil
	m.ColumnFields()
}
