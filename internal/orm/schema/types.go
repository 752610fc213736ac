// Package schema provides field descriptors, model metadata and the model registry
package schema

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// FieldType is the closed set of field kinds a model may declare
type FieldType int

const (
	TypeID FieldType = iota
	TypeInteger
	TypeBigInteger
	TypeBoolean
	TypeChars
	TypeText
	TypeDateTime
	TypeDecimal
	TypeMoney
	TypeFloat
	TypeBinary
	TypeEnumeration
	TypeManyToOne
	TypeOneToMany
	TypeManyToMany
)

// String returns the catalog name of the field type
func (t FieldType) String() string {
	switch t {
	case TypeID:
		return "id"
	case TypeInteger:
		return "integer"
	case TypeBigInteger:
		return "bigint"
	case TypeBoolean:
		return "boolean"
	case TypeChars:
		return "chars"
	case TypeText:
		return "text"
	case TypeDateTime:
		return "datetime"
	case TypeDecimal:
		return "decimal"
	case TypeMoney:
		return "money"
	case TypeFloat:
		return "float"
	case TypeBinary:
		return "binary"
	case TypeEnumeration:
		return "enum"
	case TypeManyToOne:
		return "many2one"
	case TypeOneToMany:
		return "one2many"
	case TypeManyToMany:
		return "many2many"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a catalog name to a FieldType
func ParseFieldType(s string) (FieldType, error) {
	for t := TypeID; t <= TypeManyToMany; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type: %s", s)
}

// IsRelational returns true for reference types
func (t FieldType) IsRelational() bool {
	switch t {
	case TypeManyToOne, TypeOneToMany, TypeManyToMany:
		return true
	default:
		return false
	}
}

// IsCollection returns true for types computed from an inverse query
func (t FieldType) IsCollection() bool {
	return t == TypeOneToMany || t == TypeManyToMany
}

// Convert turns a value scanned from the driver, or supplied by a caller,
// into the canonical Go value of the type. Nil stays nil.
func (t FieldType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok && t != TypeBinary {
		v = string(b)
	}

	switch t {
	case TypeID, TypeInteger, TypeBigInteger, TypeManyToOne:
		return cast.ToInt64E(v)
	case TypeBoolean:
		return cast.ToBoolE(v)
	case TypeChars, TypeText, TypeEnumeration:
		return cast.ToStringE(v)
	case TypeDateTime:
		tm, err := cast.ToTimeE(v)
		if err != nil {
			return nil, err
		}
		return tm.UTC().Truncate(time.Microsecond), nil
	case TypeDecimal, TypeMoney, TypeFloat:
		return cast.ToFloat64E(v)
	case TypeBinary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		default:
			return nil, fmt.Errorf("unable to cast %#v of type %T to []byte", v, v)
		}
	case TypeOneToMany, TypeManyToMany:
		return cast.ToSliceE(v)
	default:
		return nil, fmt.Errorf("unsupported field type %d", int(t))
	}
}

// OnDeleteAction is the referential action of a many-to-one field
type OnDeleteAction int

const (
	OnDeleteSetNull OnDeleteAction = iota
	OnDeleteCascade
	OnDeleteRestrict
)

// String returns the string representation of the action
func (a OnDeleteAction) String() string {
	switch a {
	case OnDeleteCascade:
		return "cascade"
	case OnDeleteRestrict:
		return "restrict"
	case OnDeleteSetNull:
		return "set null"
	default:
		return "unknown"
	}
}

// HookType represents the type of lifecycle hook
type HookType int

const (
	BeforeCreate HookType = iota
	BeforeUpdate
	BeforeDelete
	AfterCreate
	AfterUpdate
	AfterDelete
)

// String returns the string representation of the hook type
func (h HookType) String() string {
	switch h {
	case BeforeCreate:
		return "before_create"
	case BeforeUpdate:
		return "before_update"
	case BeforeDelete:
		return "before_delete"
	case AfterCreate:
		return "after_create"
	case AfterUpdate:
		return "after_update"
	case AfterDelete:
		return "after_delete"
	default:
		return "unknown"
	}
}

// Record maps field names to values
type Record map[string]interface{}

// ID returns the record id, or 0 when absent
func (r Record) ID() int64 {
	id, _ := cast.ToInt64E(r[FieldID])
	return id
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
