package domain

import (
	"strings"
)

// Operator represents a comparison operator of a domain term
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpLike
	OpNotLike
	OpIn
	OpNotIn
	OpChildOf
	OpParentOf
)

// String returns the domain spelling of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpLike:
		return "like"
	case OpNotLike:
		return "not like"
	case OpIn:
		return "in"
	case OpNotIn:
		return "not in"
	case OpChildOf:
		return "childof"
	case OpParentOf:
		return "parentof"
	default:
		return "unknown"
	}
}

// SQL returns the SQL spelling of a comparison operator
func (o Operator) SQL() string {
	switch o {
	case OpLike:
		return "LIKE"
	case OpNotLike:
		return "NOT LIKE"
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	default:
		return o.String()
	}
}

// ParseOperator converts a domain operator token. Matching ignores case and
// surrounding spaces; "!=" is accepted for "<>".
func ParseOperator(s string) (Operator, bool) {
	switch strings.Join(strings.Fields(strings.ToLower(s)), " ") {
	case "=", "==":
		return OpEqual, true
	case "<>", "!=":
		return OpNotEqual, true
	case ">":
		return OpGreaterThan, true
	case ">=":
		return OpGreaterThanOrEqual, true
	case "<":
		return OpLessThan, true
	case "<=":
		return OpLessThanOrEqual, true
	case "like":
		return OpLike, true
	case "not like":
		return OpNotLike, true
	case "in":
		return OpIn, true
	case "not in":
		return OpNotIn, true
	case "childof":
		return OpChildOf, true
	case "parentof":
		return OpParentOf, true
	default:
		return 0, false
	}
}

// LogicalOp combines two expressions
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

// String returns the SQL spelling of the logical operator
func (o LogicalOp) String() string {
	if o == LogicalOr {
		return "OR"
	}
	return "AND"
}
