package domain

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/objectserver/internal/orm/database"
)

// SQLWriter renders an expression tree to SQL with ? placeholders and an
// ordered argument list. Values are never written into the SQL text.
type SQLWriter struct {
	dialect database.Dialect
	b       strings.Builder
	args    []interface{}
}

// NewSQLWriter creates a writer for dialect
func NewSQLWriter(dialect database.Dialect) *SQLWriter {
	return &SQLWriter{dialect: dialect}
}

// Render renders node and returns the SQL and its arguments
func Render(dialect database.Dialect, node Node) (string, []interface{}, error) {
	w := NewSQLWriter(dialect)
	if err := node.Accept(w); err != nil {
		return "", nil, err
	}
	return w.b.String(), w.args, nil
}

func (w *SQLWriter) column(c Column) string {
	if c.Table == "" {
		return w.dialect.Quote(c.Name)
	}
	return c.Table + "." + w.dialect.Quote(c.Name)
}

// VisitSelect renders a SELECT statement
func (w *SQLWriter) VisitSelect(n *Select) error {
	w.b.WriteString("SELECT ")
	if n.Count {
		w.b.WriteString("COUNT(*)")
	} else {
		if len(n.Columns) == 0 {
			return fmt.Errorf("select has no columns")
		}
		for i, c := range n.Columns {
			if i > 0 {
				w.b.WriteString(", ")
			}
			w.b.WriteString(w.column(c))
		}
	}

	w.b.WriteString(" FROM ")
	w.b.WriteString(w.dialect.Quote(n.From.Table))
	if n.From.Alias != "" {
		w.b.WriteString(" ")
		w.b.WriteString(n.From.Alias)
	}

	if n.Where != nil && n.Where.Expr != nil {
		if c, ok := n.Where.Expr.(*Constant); !ok || !c.Value {
			w.b.WriteString(" WHERE ")
			if err := n.Where.Expr.Accept(w); err != nil {
				return err
			}
		}
	}

	if len(n.OrderBy) > 0 {
		w.b.WriteString(" ORDER BY ")
		for i, item := range n.OrderBy {
			if i > 0 {
				w.b.WriteString(", ")
			}
			w.b.WriteString(w.column(item.Column))
			if item.Desc {
				w.b.WriteString(" DESC")
			} else {
				w.b.WriteString(" ASC")
			}
		}
	}

	switch {
	case n.Limit > 0:
		w.b.WriteString(" LIMIT ?")
		w.args = append(w.args, n.Limit)
	case n.Offset > 0 && w.dialect.Name() == "sqlite3":
		// SQLite accepts OFFSET only after a LIMIT
		w.b.WriteString(" LIMIT -1")
	}
	if n.Offset > 0 {
		w.b.WriteString(" OFFSET ?")
		w.args = append(w.args, n.Offset)
	}
	return nil
}

// VisitLogical renders AND / OR
func (w *SQLWriter) VisitLogical(n *Logical) error {
	w.b.WriteString("(")
	if err := n.Left.Accept(w); err != nil {
		return err
	}
	w.b.WriteString(" ")
	w.b.WriteString(n.Op.String())
	w.b.WriteString(" ")
	if err := n.Right.Accept(w); err != nil {
		return err
	}
	w.b.WriteString(")")
	return nil
}

// VisitNot renders NOT
func (w *SQLWriter) VisitNot(n *Not) error {
	w.b.WriteString("(NOT ")
	if err := n.Expr.Accept(w); err != nil {
		return err
	}
	w.b.WriteString(")")
	return nil
}

// VisitComparison renders a binary comparison
func (w *SQLWriter) VisitComparison(n *Comparison) error {
	w.b.WriteString(w.column(n.Column))
	w.b.WriteString(" ")
	w.b.WriteString(n.Op.SQL())
	w.b.WriteString(" ?")
	w.args = append(w.args, n.Value)
	return nil
}

// VisitInList renders IN / NOT IN
func (w *SQLWriter) VisitInList(n *InList) error {
	if len(n.Values) == 0 {
		// IN () is not valid SQL; an empty set matches nothing
		return w.VisitConstant(&Constant{Value: n.Negate})
	}
	w.b.WriteString(w.column(n.Column))
	if n.Negate {
		w.b.WriteString(" NOT IN (")
	} else {
		w.b.WriteString(" IN (")
	}
	w.b.WriteString(database.Placeholders(len(n.Values)))
	w.b.WriteString(")")
	w.args = append(w.args, n.Values...)
	return nil
}

// VisitNullCheck renders IS NULL / IS NOT NULL
func (w *SQLWriter) VisitNullCheck(n *NullCheck) error {
	w.b.WriteString(w.column(n.Column))
	if n.Negate {
		w.b.WriteString(" IS NOT NULL")
	} else {
		w.b.WriteString(" IS NULL")
	}
	return nil
}

// VisitSubquery renders column IN (SELECT ...)
func (w *SQLWriter) VisitSubquery(n *Subquery) error {
	w.b.WriteString(w.column(n.Column))
	if n.Negate {
		w.b.WriteString(" NOT IN (")
	} else {
		w.b.WriteString(" IN (")
	}
	if err := n.Query.Accept(w); err != nil {
		return err
	}
	w.b.WriteString(")")
	return nil
}

// VisitRaw renders a prebuilt fragment
func (w *SQLWriter) VisitRaw(n *Raw) error {
	w.b.WriteString(n.SQL)
	w.args = append(w.args, n.Args...)
	return nil
}

// VisitConstant renders a literal predicate
func (w *SQLWriter) VisitConstant(n *Constant) error {
	if n.Value {
		w.b.WriteString("1 = 1")
	} else {
		w.b.WriteString("1 = 0")
	}
	return nil
}
