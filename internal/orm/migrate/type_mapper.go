package migrate

import (
	"fmt"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// TypeMapper maps field types to column types of a dialect
type TypeMapper struct {
	dialect database.Dialect
}

// NewTypeMapper creates a new TypeMapper
func NewTypeMapper(dialect database.Dialect) *TypeMapper {
	return &TypeMapper{dialect: dialect}
}

// MapType returns the column type of f
func (tm *TypeMapper) MapType(f *schema.Field) (string, error) {
	postgres := tm.dialect.Name() == "postgres"

	switch f.Type() {
	case schema.TypeID:
		return tm.dialect.PrimaryKey(), nil
	case schema.TypeInteger:
		return "INTEGER", nil
	case schema.TypeBigInteger, schema.TypeManyToOne:
		if postgres {
			return "BIGINT", nil
		}
		return "INTEGER", nil
	case schema.TypeBoolean:
		return "BOOLEAN", nil
	case schema.TypeChars:
		if f.Size() > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.Size()), nil
		}
		return "VARCHAR(255)", nil
	case schema.TypeEnumeration:
		return "VARCHAR(64)", nil
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeDateTime:
		if postgres {
			return "TIMESTAMP WITH TIME ZONE", nil
		}
		return "TIMESTAMP", nil
	case schema.TypeDecimal:
		return "NUMERIC", nil
	case schema.TypeMoney:
		return "NUMERIC(18,2)", nil
	case schema.TypeFloat:
		if postgres {
			return "DOUBLE PRECISION", nil
		}
		return "REAL", nil
	case schema.TypeBinary:
		if postgres {
			return "BYTEA", nil
		}
		return "BLOB", nil
	default:
		return "", fmt.Errorf("field %s of type %s has no column", f.Name(), f.Type())
	}
}

// MapOnDelete returns the referential action clause of a many-to-one field
func (tm *TypeMapper) MapOnDelete(action schema.OnDeleteAction) string {
	switch action {
	case schema.OnDeleteCascade:
		return "ON DELETE CASCADE"
	case schema.OnDeleteRestrict:
		return "ON DELETE RESTRICT"
	default:
		return "ON DELETE SET NULL"
	}
}
