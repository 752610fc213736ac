// Package hierarchy maintains the nested-set intervals of hierarchical
// models. Every node stores _left and _right so that the strict descendants
// of a node are exactly the rows whose _left lies inside its interval.
//
// All mutations assume the caller holds a transaction and has taken the
// table lock, so that concurrent writers cannot interleave interval shifts.
package hierarchy

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Interval is the nested-set position of one node
type Interval struct {
	ID    int64
	Left  int64
	Right int64
}

// Width returns the number of interval slots the subtree occupies
func (i Interval) Width() int64 {
	return i.Right - i.Left + 1
}

// Contains reports whether other lies inside i
func (i Interval) Contains(other Interval) bool {
	return other.Left >= i.Left && other.Right <= i.Right
}

// Manager maintains the intervals of one hierarchical model
type Manager struct {
	model  *schema.Model
	logger *zap.Logger

	table, id, parent, left, right string
}

// NewManager creates a manager for model quoted for dialect
func NewManager(model *schema.Model, dialect database.Dialect, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		model:  model,
		logger: logger,
		table:  dialect.Quote(model.TableName()),
		id:     dialect.Quote(schema.FieldID),
		parent: dialect.Quote(schema.FieldParent),
		left:   dialect.Quote(schema.FieldLeft),
		right:  dialect.Quote(schema.FieldRight),
	}
}

// Lock takes the table lock that serializes structural changes
func (m *Manager) Lock(ctx context.Context, conn database.Conn) error {
	stmt := conn.Dialect().LockTable(m.model.TableName())
	if stmt == "" {
		return nil
	}
	_, err := conn.Execute(ctx, stmt)
	return err
}

// Position loads the interval of node id
func (m *Manager) Position(ctx context.Context, conn database.Conn, id int64) (Interval, error) {
	rows, err := conn.QueryAsDictionary(ctx,
		fmt.Sprintf("SELECT %s AS l, %s AS r FROM %s WHERE %s = ?", m.left, m.right, m.table, m.id), id)
	if err != nil {
		return Interval{}, err
	}
	if len(rows) == 0 {
		return Interval{}, ormerrors.ResourceNotFound(m.model.Name(), "node %d not found", id)
	}
	left, err := cast.ToInt64E(rows[0]["l"])
	if err != nil {
		return Interval{}, fmt.Errorf("node %d has no interval: %w", id, err)
	}
	right, err := cast.ToInt64E(rows[0]["r"])
	if err != nil {
		return Interval{}, fmt.Errorf("node %d has no interval: %w", id, err)
	}
	return Interval{ID: id, Left: left, Right: right}, nil
}

// OpenGap reserves width interval slots for a new subtree placed as the
// last child of parent, or after the last root when parent is 0, and returns
// the left bound of the reserved range
func (m *Manager) OpenGap(ctx context.Context, conn database.Conn, parent, width int64) (int64, error) {
	if parent == 0 {
		max, err := m.maxRight(ctx, conn)
		if err != nil {
			return 0, err
		}
		return max + 1, nil
	}

	p, err := m.Position(ctx, conn, parent)
	if err != nil {
		return 0, err
	}
	if err := m.openGap(ctx, conn, p.Right, width); err != nil {
		return 0, err
	}
	return p.Right, nil
}

// Insert places the already inserted row id as the last child of parent.
// The row's own interval must be unset.
func (m *Manager) Insert(ctx context.Context, conn database.Conn, id, parent int64) error {
	left, err := m.OpenGap(ctx, conn, parent, 2)
	if err != nil {
		return err
	}
	_, err = conn.Execute(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ?, %s = ? WHERE %s = ?", m.table, m.left, m.right, m.id),
		left, left+1, id)
	return err
}

// Move reparents node id under parent, or to the roots when parent is 0.
// The subtree keeps its shape. Moving a node under itself or one of its
// descendants is rejected.
func (m *Manager) Move(ctx context.Context, conn database.Conn, id, parent int64) error {
	node, err := m.Position(ctx, conn, id)
	if err != nil {
		return err
	}
	if parent != 0 {
		p, err := m.Position(ctx, conn, parent)
		if err != nil {
			return err
		}
		if node.Contains(p) {
			return ormerrors.Validation(m.model.Name(), map[string]string{
				schema.FieldParent: "cannot move a node under itself",
			})
		}
	}

	width := node.Width()

	// park the subtree on negative positions
	if _, err := conn.Execute(ctx,
		fmt.Sprintf("UPDATE %[1]s SET %[2]s = 0 - %[2]s, %[3]s = 0 - %[3]s WHERE %[2]s >= ? AND %[3]s <= ?", m.table, m.left, m.right),
		node.Left, node.Right); err != nil {
		return err
	}
	if err := m.closeGap(ctx, conn, node.Right, width); err != nil {
		return err
	}

	target, err := m.OpenGap(ctx, conn, parent, width)
	if err != nil {
		return err
	}

	offset := target - node.Left
	if _, err := conn.Execute(ctx,
		fmt.Sprintf("UPDATE %[1]s SET %[2]s = ? - %[2]s, %[3]s = ? - %[3]s WHERE %[2]s < 0", m.table, m.left, m.right),
		offset, offset); err != nil {
		return err
	}

	var parentArg interface{}
	if parent != 0 {
		parentArg = parent
	}
	_, err = conn.Execute(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", m.table, m.parent, m.id), parentArg, id)
	return err
}

// Expand returns ids together with all their descendants, sorted and
// without duplicates, plus the outermost intervals covering them
func (m *Manager) Expand(ctx context.Context, conn database.Conn, ids []int64) ([]int64, []Interval, error) {
	var intervals []Interval
	for _, id := range ids {
		iv, err := m.Position(ctx, conn, id)
		if err != nil {
			return nil, nil, err
		}
		intervals = append(intervals, iv)
	}
	outer := outermost(intervals)

	seen := make(map[int64]bool)
	var all []int64
	for _, iv := range outer {
		sub, err := conn.QueryIDs(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE %s >= ? AND %s <= ?", m.id, m.table, m.left, m.right),
			iv.Left, iv.Right)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range sub {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all, outer, nil
}

// Remove closes the gaps left by deleted subtrees. It must run after the
// rows inside the intervals are gone.
func (m *Manager) Remove(ctx context.Context, conn database.Conn, intervals []Interval) error {
	outer := outermost(intervals)
	// rightmost first so earlier intervals keep their positions
	sort.Slice(outer, func(i, j int) bool { return outer[i].Left > outer[j].Left })
	for _, iv := range outer {
		if err := m.closeGap(ctx, conn, iv.Right, iv.Width()); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSubtrees deletes the nodes ids with all their descendants and
// returns the deleted ids
func (m *Manager) DeleteSubtrees(ctx context.Context, conn database.Conn, ids []int64) ([]int64, error) {
	all, outer, err := m.Expand(ctx, conn, ids)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	if _, err := conn.Execute(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", m.table, m.id, database.Placeholders(len(all))),
		database.Int64Args(all)...); err != nil {
		return nil, err
	}
	return all, m.Remove(ctx, conn, outer)
}

func (m *Manager) openGap(ctx context.Context, conn database.Conn, at, width int64) error {
	if _, err := conn.Execute(ctx,
		fmt.Sprintf("UPDATE %[1]s SET %[2]s = %[2]s + ? WHERE %[2]s >= ?", m.table, m.right), width, at); err != nil {
		return err
	}
	_, err := conn.Execute(ctx,
		fmt.Sprintf("UPDATE %[1]s SET %[2]s = %[2]s + ? WHERE %[2]s >= ?", m.table, m.left), width, at)
	return err
}

func (m *Manager) closeGap(ctx context.Context, conn database.Conn, after, width int64) error {
	if _, err := conn.Execute(ctx,
		fmt.Sprintf("UPDATE %[1]s SET %[2]s = %[2]s - ? WHERE %[2]s > ?", m.table, m.left), width, after); err != nil {
		return err
	}
	_, err := conn.Execute(ctx,
		fmt.Sprintf("UPDATE %[1]s SET %[2]s = %[2]s - ? WHERE %[2]s > ?", m.table, m.right), width, after)
	return err
}

func (m *Manager) maxRight(ctx context.Context, conn database.Conn) (int64, error) {
	v, err := conn.QueryValue(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(%[1]s), 0) FROM %[2]s WHERE %[1]s > 0", m.right, m.table))
	if err != nil {
		return 0, err
	}
	return cast.ToInt64E(v)
}

// outermost drops intervals contained in another one of the list
func outermost(intervals []Interval) []Interval {
	sorted := append([]Interval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Left < sorted[j].Left })

	var out []Interval
	for _, iv := range sorted {
		if len(out) > 0 && out[len(out)-1].Contains(iv) {
			continue
		}
		out = append(out, iv)
	}
	return out
}
