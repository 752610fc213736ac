// Package migrate keeps the database in step with the declared models.
// The Synchronizer mirrors model and field declarations into the catalog
// tables; the TableBuilder creates tables and adds missing columns.
package migrate

import (
	"sort"

	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// ChangeType represents the type of catalog change
type ChangeType int

const (
	ChangeAddField ChangeType = iota
	ChangeDropField
	ChangeModifyField
)

// String returns the string representation of the change type
func (c ChangeType) String() string {
	switch c {
	case ChangeAddField:
		return "add_field"
	case ChangeDropField:
		return "drop_field"
	case ChangeModifyField:
		return "modify_field"
	default:
		return "unknown"
	}
}

// CatalogField is one core_field row
type CatalogField struct {
	ID       int64
	Name     string
	Relation string
	Label    string
	Type     string
	Help     string
}

// catalogFieldOf returns the catalog row describing f
func catalogFieldOf(f *schema.Field) CatalogField {
	return CatalogField{
		Name:     f.Name(),
		Relation: f.Relation(),
		Label:    f.Label(),
		Type:     f.Type().String(),
		Help:     f.Help(),
	}
}

// sameAs compares the attributes the catalog mirrors
func (c CatalogField) sameAs(other CatalogField) bool {
	return c.Relation == other.Relation &&
		c.Label == other.Label &&
		c.Type == other.Type &&
		c.Help == other.Help
}

// FieldChange is a detected difference between catalog and declaration
type FieldChange struct {
	Type  ChangeType
	Field string
	Old   CatalogField
	New   CatalogField
}

// Differ compares stored catalog rows with declared fields
type Differ struct {
	stored   map[string]CatalogField
	declared map[string]CatalogField
}

// NewDiffer creates a differ for the stored rows and the declared fields
func NewDiffer(stored []CatalogField, declared []*schema.Field) *Differ {
	d := &Differ{
		stored:   make(map[string]CatalogField, len(stored)),
		declared: make(map[string]CatalogField, len(declared)),
	}
	for _, row := range stored {
		d.stored[row.Name] = row
	}
	for _, f := range declared {
		d.declared[f.Name()] = catalogFieldOf(f)
	}
	return d
}

// ComputeDiff returns additions, then removals, then modifications, each
// sorted by field name
func (d *Differ) ComputeDiff() []FieldChange {
	var changes []FieldChange

	storedNames := sortedNames(d.stored)
	declaredNames := sortedNames(d.declared)

	for _, name := range setDifference(declaredNames, storedNames) {
		changes = append(changes, FieldChange{Type: ChangeAddField, Field: name, New: d.declared[name]})
	}

	for _, name := range setDifference(storedNames, declaredNames) {
		changes = append(changes, FieldChange{Type: ChangeDropField, Field: name, Old: d.stored[name]})
	}

	for _, name := range setIntersection(declaredNames, storedNames) {
		old, new := d.stored[name], d.declared[name]
		if old.sameAs(new) {
			continue
		}
		new.ID = old.ID
		changes = append(changes, FieldChange{Type: ChangeModifyField, Field: name, Old: old, New: new})
	}

	return changes
}

func setDifference(a, b []string) []string {
	mb := make(map[string]bool)
	for _, x := range b {
		mb[x] = true
	}

	var diff []string
	for _, x := range a {
		if !mb[x] {
			diff = append(diff, x)
		}
	}
	return diff
}

func setIntersection(a, b []string) []string {
	mb := make(map[string]bool)
	for _, x := range b {
		mb[x] = true
	}

	var inter []string
	for _, x := range a {
		if mb[x] {
			inter = append(inter, x)
		}
	}
	return inter
}

func sortedNames(fields map[string]CatalogField) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
