package crud

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/hierarchy"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Delete deletes the records ids. Unknown ids are ignored. Deleting a tree
// node deletes its whole subtree and closes the gap it leaves.
func (e *Engine) Delete(env schema.Env, ids []int64) error {
	if err := e.checkAccess(env, OperationDelete); err != nil {
		return err
	}
	return e.delete(env, ids)
}

func (e *Engine) delete(env schema.Env, ids []int64) error {
	ctx, conn := env.Context(), env.Conn()

	// 1. Load existing records
	found, err := e.existing(env, ids)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}
	e.changed(env, e.model)

	// 2. Execute before delete hooks
	for _, id := range found {
		if err := e.runHooks(env, schema.BeforeDelete, schema.Record{schema.FieldID: id}); err != nil {
			return hookError(schema.BeforeDelete.String(), err)
		}
	}

	// 3. Expand tree nodes to their subtrees
	all := found
	var tree *hierarchy.Manager
	var gaps []hierarchy.Interval
	if e.model.IsHierarchy() {
		tree = e.tree(env)
		if err := tree.Lock(ctx, conn); err != nil {
			return err
		}
		if all, gaps, err = tree.Expand(ctx, conn, found); err != nil {
			return err
		}
	}

	// 4. Delete links, rows, then close gaps
	if err := e.removeLinks(env, all); err != nil {
		return err
	}
	d := conn.Dialect()
	if _, err := conn.Execute(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
			d.Quote(e.model.TableName()), d.Quote(schema.FieldID), database.Placeholders(len(all))),
		database.Int64Args(all)...); err != nil {
		return fmt.Errorf("failed to delete %s: %w", e.model.Name(), err)
	}
	if tree != nil {
		if err := tree.Remove(ctx, conn, gaps); err != nil {
			return err
		}
	}

	// 5. Execute after delete hooks
	for _, id := range found {
		if err := e.runHooks(env, schema.AfterDelete, schema.Record{schema.FieldID: id}); err != nil {
			return hookError(schema.AfterDelete.String(), err)
		}
	}

	e.logger.Debug("records deleted", zap.String("model", e.model.Name()), zap.Int("count", len(all)))
	return nil
}
