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

// node is one row of the parent forest
type node struct {
	id       int64
	parent   int64
	current  Interval
	children []*node
}

// Violation is a node whose stored interval differs from the one derived
// from the parent links
type Violation struct {
	ID       int64
	Stored   Interval
	Expected Interval
}

func (v Violation) String() string {
	return fmt.Sprintf("node %d: stored [%d,%d], expected [%d,%d]",
		v.ID, v.Stored.Left, v.Stored.Right, v.Expected.Left, v.Expected.Right)
}

// Verify compares the stored intervals with the intervals implied by the
// parent links. Siblings are ordered by their stored position.
func (m *Manager) Verify(ctx context.Context, conn database.Conn) ([]Violation, error) {
	nodes, roots, err := m.forest(ctx, conn)
	if err != nil {
		return nil, err
	}
	expected, err := m.number(nodes, roots)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, n := range nodes {
		want := expected[n.id]
		if n.current.Left != want.Left || n.current.Right != want.Right {
			violations = append(violations, Violation{ID: n.id, Stored: n.current, Expected: want})
		}
	}
	sort.Slice(violations, func(i, j int) bool { return violations[i].ID < violations[j].ID })
	return violations, nil
}

// Rebuild recomputes every interval from the parent links and returns the
// number of rows rewritten
func (m *Manager) Rebuild(ctx context.Context, conn database.Conn) (int, error) {
	violations, err := m.Verify(ctx, conn)
	if err != nil {
		return 0, err
	}
	if len(violations) == 0 {
		return 0, nil
	}

	for _, v := range violations {
		if _, err := conn.Execute(ctx,
			fmt.Sprintf("UPDATE %s SET %s = ?, %s = ? WHERE %s = ?", m.table, m.left, m.right, m.id),
			v.Expected.Left, v.Expected.Right, v.ID); err != nil {
			return 0, err
		}
	}

	m.logger.Info("hierarchy rebuilt",
		zap.String("model", m.model.Name()),
		zap.Int("rows", len(violations)))
	return len(violations), nil
}

func (m *Manager) forest(ctx context.Context, conn database.Conn) (map[int64]*node, []*node, error) {
	rows, err := conn.QueryAsDictionary(ctx,
		fmt.Sprintf("SELECT %s AS id, %s AS parent, %s AS l, %s AS r FROM %s",
			m.id, m.parent, m.left, m.right, m.table))
	if err != nil {
		return nil, nil, err
	}

	nodes := make(map[int64]*node, len(rows))
	for _, row := range rows {
		id := cast.ToInt64(row["id"])
		nodes[id] = &node{
			id:     id,
			parent: cast.ToInt64(row["parent"]),
			current: Interval{
				ID:    id,
				Left:  cast.ToInt64(row["l"]),
				Right: cast.ToInt64(row["r"]),
			},
		}
	}

	var roots []*node
	for _, n := range nodes {
		p, ok := nodes[n.parent]
		if n.parent == 0 || !ok {
			roots = append(roots, n)
			continue
		}
		p.children = append(p.children, n)
	}

	byPosition := func(list []*node) {
		sort.Slice(list, func(i, j int) bool {
			a, b := list[i].current, list[j].current
			// unset intervals sort last
			if (a.Left > 0) != (b.Left > 0) {
				return a.Left > 0
			}
			if a.Left != b.Left {
				return a.Left < b.Left
			}
			return a.ID < b.ID
		})
	}
	byPosition(roots)
	for _, n := range nodes {
		byPosition(n.children)
	}
	return nodes, roots, nil
}

// number assigns depth-first intervals starting at 1
func (m *Manager) number(nodes map[int64]*node, roots []*node) (map[int64]Interval, error) {
	out := make(map[int64]Interval, len(nodes))
	counter := int64(0)

	var visit func(n *node)
	visit = func(n *node) {
		counter++
		left := counter
		for _, c := range n.children {
			visit(c)
		}
		counter++
		out[n.id] = Interval{ID: n.id, Left: left, Right: counter}
	}
	for _, r := range roots {
		visit(r)
	}

	if len(out) != len(nodes) {
		// nodes unreachable from a root sit on a parent cycle
		var cyclic []int64
		for id := range nodes {
			if _, ok := out[id]; !ok {
				cyclic = append(cyclic, id)
			}
		}
		sort.Slice(cyclic, func(i, j int) bool { return cyclic[i] < cyclic[j] })
		return nil, ormerrors.Validation(m.model.Name(), map[string]string{
			schema.FieldParent: fmt.Sprintf("parent cycle through nodes %v", cyclic),
		})
	}
	return out, nil
}

