package hierarchy

import (
	"fmt"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// ChildOf returns the interval predicate selecting the strict descendants of
// node id. alias is the table alias of the filtered rows. A missing node
// matches nothing.
func ChildOf(d database.Dialect, table, alias string, id int64) (string, []interface{}) {
	left, right, idCol, tbl := d.Quote(schema.FieldLeft), d.Quote(schema.FieldRight), d.Quote(schema.FieldID), d.Quote(table)
	return fmt.Sprintf(
		"(%[1]s.%[2]s > (SELECT %[2]s FROM %[4]s WHERE %[5]s = ?) AND %[1]s.%[2]s < (SELECT %[3]s FROM %[4]s WHERE %[5]s = ?))",
		alias, left, right, tbl, idCol,
	), []interface{}{id, id}
}

// ParentOf returns the interval predicate selecting the strict ancestors of
// node id
func ParentOf(d database.Dialect, table, alias string, id int64) (string, []interface{}) {
	left, right, idCol, tbl := d.Quote(schema.FieldLeft), d.Quote(schema.FieldRight), d.Quote(schema.FieldID), d.Quote(table)
	return fmt.Sprintf(
		"(%[1]s.%[2]s < (SELECT %[2]s FROM %[4]s WHERE %[5]s = ?) AND %[1]s.%[3]s > (SELECT %[3]s FROM %[4]s WHERE %[5]s = ?))",
		alias, left, right, tbl, idCol,
	), []interface{}{id, id}
}
