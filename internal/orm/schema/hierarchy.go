package schema

import (
	"fmt"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/spf13/cast"
)

// descendantsGetter computes the strict descendants of a batch of nodes
// with one interval join
func descendantsGetter(m *Model) ValueGetter {
	return func(env Env, ids []int64) (map[int64]interface{}, error) {
		result := make(map[int64]interface{}, len(ids))
		for _, id := range ids {
			result[id] = []int64{}
		}
		if len(ids) == 0 {
			return result, nil
		}

		conn := env.Conn()
		d := conn.Dialect()
		query := fmt.Sprintf(
			"SELECT p.%[1]s AS parent_id, c.%[1]s AS child_id FROM %[2]s p JOIN %[2]s c ON c.%[3]s > p.%[3]s AND c.%[3]s < p.%[4]s WHERE p.%[1]s IN (%[5]s) ORDER BY c.%[1]s",
			d.Quote(FieldID),
			d.Quote(m.tableName),
			d.Quote(FieldLeft),
			d.Quote(FieldRight),
			database.Placeholders(len(ids)),
		)

		rows, err := conn.QueryAsDictionary(env.Context(), query, database.Int64Args(ids)...)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			parent := cast.ToInt64(row["parent_id"])
			child := cast.ToInt64(row["child_id"])
			result[parent] = append(result[parent].([]int64), child)
		}
		return result, nil
	}
}
