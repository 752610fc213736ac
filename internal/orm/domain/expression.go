package domain

// Node is an element of the SQL expression tree
type Node interface {
	Accept(v Visitor) error
}

// Visitor walks the expression tree
type Visitor interface {
	VisitSelect(n *Select) error
	VisitLogical(n *Logical) error
	VisitNot(n *Not) error
	VisitComparison(n *Comparison) error
	VisitInList(n *InList) error
	VisitNullCheck(n *NullCheck) error
	VisitSubquery(n *Subquery) error
	VisitRaw(n *Raw) error
	VisitConstant(n *Constant) error
}

// Column is a column of an aliased table
type Column struct {
	Table string
	Name  string
}

// Logical combines two expressions with AND or OR
type Logical struct {
	Op    LogicalOp
	Left  Node
	Right Node
}

// Accept implements Node
func (n *Logical) Accept(v Visitor) error { return v.VisitLogical(n) }

// Not negates an expression
type Not struct {
	Expr Node
}

// Accept implements Node
func (n *Not) Accept(v Visitor) error { return v.VisitNot(n) }

// Comparison compares a column with one parameter
type Comparison struct {
	Column Column
	Op     Operator
	Value  interface{}
}

// Accept implements Node
func (n *Comparison) Accept(v Visitor) error { return v.VisitComparison(n) }

// InList tests a column against a parameter list
type InList struct {
	Column Column
	Negate bool
	Values []interface{}
}

// Accept implements Node
func (n *InList) Accept(v Visitor) error { return v.VisitInList(n) }

// NullCheck tests a column for NULL
type NullCheck struct {
	Column Column
	Negate bool
}

// Accept implements Node
func (n *NullCheck) Accept(v Visitor) error { return v.VisitNullCheck(n) }

// Subquery tests a column against the rows of a nested select
type Subquery struct {
	Column Column
	Negate bool
	Query  *Select
}

// Accept implements Node
func (n *Subquery) Accept(v Visitor) error { return v.VisitSubquery(n) }

// Raw is a prebuilt SQL fragment with its parameters
type Raw struct {
	SQL  string
	Args []interface{}
}

// Accept implements Node
func (n *Raw) Accept(v Visitor) error { return v.VisitRaw(n) }

// Constant is a literal TRUE or FALSE predicate
type Constant struct {
	Value bool
}

// Accept implements Node
func (n *Constant) Accept(v Visitor) error { return v.VisitConstant(n) }

// From is the FROM clause
type From struct {
	Table string
	Alias string
}

// WhereClause is the WHERE clause
type WhereClause struct {
	Expr Node
}

// OrderItem is one ORDER BY entry
type OrderItem struct {
	Column Column
	Desc   bool
}

// Select is a SELECT statement. Count selects COUNT(*) instead of Columns.
// Zero Limit means unlimited.
type Select struct {
	Columns []Column
	Count   bool
	From    From
	Where   *WhereClause
	OrderBy []OrderItem
	Offset  int64
	Limit   int64
}

// Accept implements Node
func (n *Select) Accept(v Visitor) error { return v.VisitSelect(n) }
