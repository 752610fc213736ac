// Package domain compiles declarative predicate lists ("domains") into
// parameterized SQL.
//
// A domain is a list whose elements are [field, operator, value] triples or
// the logical tokens "and", "or" and "not" written in prefix notation:
//
//	[]interface{}{"or", []interface{}{"name", "=", "a"}, []interface{}{"name", "=", "b"}}
//
// Expressions left over after all tokens are applied are combined with AND,
// so a plain list of triples is their conjunction.
package domain

import (
	"strings"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
)

// Logical tokens
const (
	TokenAnd = "and"
	TokenOr  = "or"
	TokenNot = "not"
)

// Term is one field comparison
type Term struct {
	Field    string
	Operator string
	Value    interface{}
}

// Where creates a term
func Where(field, operator string, value interface{}) Term {
	return Term{Field: field, Operator: operator, Value: value}
}

// Domain is a domain literal
type Domain []interface{}

// And returns the conjunction of d and other
func (d Domain) And(other Domain) Domain {
	if len(d) == 0 {
		return other
	}
	if len(other) == 0 {
		return d
	}
	out := make(Domain, 0, len(d)+len(other)+1)
	out = append(out, TokenAnd)
	out = append(out, d.group()...)
	out = append(out, other.group()...)
	return out
}

// Or returns the disjunction of the given domains. An empty domain matches
// everything, so it absorbs the disjunction.
func Or(domains ...Domain) Domain {
	var out Domain
	for i, d := range domains {
		if len(d) == 0 {
			return nil
		}
		if i > 0 {
			out = append(Domain{TokenOr}, out...)
		}
		out = append(out, d.group()...)
	}
	return out
}

// group returns d as a single prefix expression
func (d Domain) group() Domain {
	n, err := countExpressions(d)
	if err != nil || n <= 1 {
		return d
	}
	out := make(Domain, 0, len(d)+n-1)
	for i := 1; i < n; i++ {
		out = append(out, TokenAnd)
	}
	return append(out, d...)
}

// countExpressions returns how many top-level expressions d leaves behind
func countExpressions(d Domain) (int, error) {
	depth := 0
	for i := len(d) - 1; i >= 0; i-- {
		token, _, err := classify(d[i])
		if err != nil {
			return 0, err
		}
		switch token {
		case "":
			depth++
		case TokenNot:
			if depth < 1 {
				return 0, ormerrors.Argument("", "domain operator %q lacks operands", token)
			}
		default:
			if depth < 2 {
				return 0, ormerrors.Argument("", "domain operator %q lacks operands", token)
			}
			depth--
		}
	}
	return depth, nil
}

// classify returns the normalized logical token of el, or the term it holds
func classify(el interface{}) (string, Term, error) {
	switch v := el.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case TokenAnd, "&":
			return TokenAnd, Term{}, nil
		case TokenOr, "|":
			return TokenOr, Term{}, nil
		case TokenNot, "!":
			return TokenNot, Term{}, nil
		}
		return "", Term{}, ormerrors.Argument("", "unknown domain token %q", v)
	case Term:
		return "", v, nil
	case *Term:
		if v == nil {
			return "", Term{}, ormerrors.Argument("", "nil domain term")
		}
		return "", *v, nil
	case []interface{}:
		if len(v) == 3 {
			field, ok1 := v[0].(string)
			op, ok2 := v[1].(string)
			if ok1 && ok2 {
				return "", Term{Field: field, Operator: op, Value: v[2]}, nil
			}
		}
		return "", Term{}, ormerrors.Argument("", "malformed domain term %v", v)
	case []string:
		if len(v) == 3 {
			return "", Term{Field: v[0], Operator: v[1], Value: v[2]}, nil
		}
		return "", Term{}, ormerrors.Argument("", "malformed domain term %v", v)
	default:
		return "", Term{}, ormerrors.Argument("", "malformed domain element %v", el)
	}
}
