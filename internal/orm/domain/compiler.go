package domain

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/hierarchy"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Compiler translates domains over one model into expression trees
type Compiler struct {
	model     *schema.Model
	container schema.ResourceContainer
	dialect   database.Dialect
	alias     string
	counter   *int
}

// NewCompiler creates a compiler for model. container resolves the models
// reached through relations and inheritance.
func NewCompiler(model *schema.Model, container schema.ResourceContainer, dialect database.Dialect) *Compiler {
	counter := 0
	return &Compiler{
		model:     model,
		container: container,
		dialect:   dialect,
		alias:     "_t0",
		counter:   &counter,
	}
}

// Alias returns the table alias of the compiled model
func (c *Compiler) Alias() string {
	return c.alias
}

func (c *Compiler) child(model *schema.Model) *Compiler {
	*c.counter++
	return &Compiler{
		model:     model,
		container: c.container,
		dialect:   c.dialect,
		alias:     fmt.Sprintf("_t%d", *c.counter),
		counter:   c.counter,
	}
}

// Compile builds the predicate of d. An empty domain compiles to TRUE.
func (c *Compiler) Compile(d Domain) (Node, error) {
	var stack []Node
	pop := func(token string) (Node, error) {
		if len(stack) == 0 {
			return nil, ormerrors.Argument(c.model.Name(), "domain operator %q lacks operands", token)
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return n, nil
	}

	for i := len(d) - 1; i >= 0; i-- {
		token, term, err := classify(d[i])
		if err != nil {
			return nil, withResource(err, c.model.Name())
		}

		switch token {
		case "":
			node, err := c.compileTerm(term)
			if err != nil {
				return nil, err
			}
			stack = append(stack, node)
		case TokenNot:
			operand, err := pop(token)
			if err != nil {
				return nil, err
			}
			stack = append(stack, &Not{Expr: operand})
		default:
			first, err := pop(token)
			if err != nil {
				return nil, err
			}
			second, err := pop(token)
			if err != nil {
				return nil, err
			}
			op := LogicalAnd
			if token == TokenOr {
				op = LogicalOr
			}
			stack = append(stack, &Logical{Op: op, Left: first, Right: second})
		}
	}

	if len(stack) == 0 {
		return &Constant{Value: true}, nil
	}
	// leftover expressions are implicitly ANDed in list order
	result := stack[len(stack)-1]
	for i := len(stack) - 2; i >= 0; i-- {
		result = &Logical{Op: LogicalAnd, Left: result, Right: stack[i]}
	}
	return result, nil
}

func (c *Compiler) compileTerm(t Term) (Node, error) {
	name := c.model.Name()
	op, ok := ParseOperator(t.Operator)
	if !ok {
		return nil, ormerrors.Argument(name, "unknown operator %q", t.Operator)
	}

	field, ok := c.model.Field(t.Field)
	if !ok {
		return nil, ormerrors.ArgumentOutOfRange(name, "unknown field %q", t.Field)
	}

	if field.IsInherited() {
		return c.compileInherited(field, t)
	}
	if field.Type().IsCollection() || field.IsFunctional() {
		return nil, ormerrors.Argument(name, "field %q is not searchable", t.Field)
	}

	col := Column{Table: c.alias, Name: field.Name()}

	switch op {
	case OpChildOf, OpParentOf:
		return c.compileHierarchy(field, op, t.Value)
	case OpIn, OpNotIn:
		items, err := valueList(t.Value)
		if err != nil {
			return nil, ormerrors.Argument(name, "operator %q on field %q needs a list: %v", op, field.Name(), err)
		}
		values := make([]interface{}, 0, len(items))
		for _, item := range items {
			v, err := c.convert(field, item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return &InList{Column: col, Negate: op == OpNotIn, Values: values}, nil
	case OpLike, OpNotLike:
		s, ok := t.Value.(string)
		if !ok {
			return nil, ormerrors.Argument(name, "operator %q on field %q needs a string pattern", op, field.Name())
		}
		return &Comparison{Column: col, Op: op, Value: s}, nil
	}

	if t.Value == nil {
		switch op {
		case OpEqual:
			return &NullCheck{Column: col}, nil
		case OpNotEqual:
			return &NullCheck{Column: col, Negate: true}, nil
		default:
			return nil, ormerrors.Argument(name, "operator %q on field %q cannot compare with null", op, field.Name())
		}
	}

	v, err := c.convert(field, t.Value)
	if err != nil {
		return nil, err
	}
	return &Comparison{Column: col, Op: op, Value: v}, nil
}

// compileInherited filters on the base table through the delegation field
func (c *Compiler) compileInherited(field *schema.Field, t Term) (Node, error) {
	inh := field.Inheritance()
	base, err := c.container.GetResource(inh.BaseModel)
	if err != nil {
		return nil, err
	}
	sub := c.child(base)
	node, err := sub.compileTerm(t)
	if err != nil {
		return nil, err
	}
	return &Subquery{
		Column: Column{Table: c.alias, Name: inh.RelatedField},
		Query: &Select{
			Columns: []Column{{Table: sub.alias, Name: schema.FieldID}},
			From:    From{Table: base.TableName(), Alias: sub.alias},
			Where:   &WhereClause{Expr: node},
		},
	}, nil
}

func (c *Compiler) compileHierarchy(field *schema.Field, op Operator, value interface{}) (Node, error) {
	name := c.model.Name()
	id, err := cast.ToInt64E(reduceReference(value))
	if err != nil {
		return nil, ormerrors.Argument(name, "operator %q on field %q needs a record id", op, field.Name())
	}

	predicate := hierarchy.ChildOf
	if op == OpParentOf {
		predicate = hierarchy.ParentOf
	}

	switch {
	case field.Name() == schema.FieldID:
		if !c.model.IsHierarchy() {
			return nil, ormerrors.Argument(name, "operator %q needs a hierarchical model", op)
		}
		sql, args := predicate(c.dialect, c.model.TableName(), c.alias, id)
		return &Raw{SQL: sql, Args: args}, nil
	case field.Type() == schema.TypeManyToOne:
		target, err := c.container.GetResource(field.Relation())
		if err != nil {
			return nil, err
		}
		if !target.IsHierarchy() {
			return nil, ormerrors.Argument(name, "operator %q on field %q needs a hierarchical relation", op, field.Name())
		}
		sub := c.child(target)
		sql, args := predicate(c.dialect, target.TableName(), sub.alias, id)
		return &Subquery{
			Column: Column{Table: c.alias, Name: field.Name()},
			Query: &Select{
				Columns: []Column{{Table: sub.alias, Name: schema.FieldID}},
				From:    From{Table: target.TableName(), Alias: sub.alias},
				Where:   &WhereClause{Expr: &Raw{SQL: sql, Args: args}},
			},
		}, nil
	default:
		return nil, ormerrors.Argument(name, "operator %q is not supported on field %q", op, field.Name())
	}
}

func (c *Compiler) convert(field *schema.Field, value interface{}) (interface{}, error) {
	if field.Type() == schema.TypeManyToOne {
		value = reduceReference(value)
	}
	v, err := field.Type().Convert(value)
	if err != nil {
		return nil, ormerrors.Argument(c.model.Name(), "invalid value for field %q: %v", field.Name(), err)
	}
	return v, nil
}

// ParseOrder parses "field [asc|desc]" entries. The id column is appended
// as a tie-breaker so paging is stable.
func (c *Compiler) ParseOrder(order []string) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(order)+1)
	hasID := false
	for _, entry := range order {
		parts := strings.Fields(entry)
		if len(parts) == 0 || len(parts) > 2 {
			return nil, ormerrors.Argument(c.model.Name(), "invalid order %q", entry)
		}
		field, ok := c.model.Field(parts[0])
		if !ok || !field.IsColumn() {
			return nil, ormerrors.ArgumentOutOfRange(c.model.Name(), "cannot order by %q", parts[0])
		}
		desc := false
		if len(parts) == 2 {
			switch strings.ToLower(parts[1]) {
			case "asc":
			case "desc":
				desc = true
			default:
				return nil, ormerrors.Argument(c.model.Name(), "invalid order direction %q", parts[1])
			}
		}
		if field.Name() == schema.FieldID {
			hasID = true
		}
		items = append(items, OrderItem{Column: Column{Table: c.alias, Name: field.Name()}, Desc: desc})
	}
	if !hasID {
		items = append(items, OrderItem{Column: Column{Table: c.alias, Name: schema.FieldID}})
	}
	return items, nil
}

// SelectIDs renders the query returning the ids matching d
func (c *Compiler) SelectIDs(d Domain, order []string, offset, limit int64) (string, []interface{}, error) {
	if offset < 0 || limit < 0 {
		return "", nil, ormerrors.ArgumentOutOfRange(c.model.Name(), "offset and limit must not be negative")
	}
	where, err := c.Compile(d)
	if err != nil {
		return "", nil, err
	}
	orderBy, err := c.ParseOrder(order)
	if err != nil {
		return "", nil, err
	}
	return Render(c.dialect, &Select{
		Columns: []Column{{Table: c.alias, Name: schema.FieldID}},
		From:    From{Table: c.model.TableName(), Alias: c.alias},
		Where:   &WhereClause{Expr: where},
		OrderBy: orderBy,
		Offset:  offset,
		Limit:   limit,
	})
}

// SelectCount renders the query counting the rows matching d
func (c *Compiler) SelectCount(d Domain) (string, []interface{}, error) {
	where, err := c.Compile(d)
	if err != nil {
		return "", nil, err
	}
	return Render(c.dialect, &Select{
		Count: true,
		From:  From{Table: c.model.TableName(), Alias: c.alias},
		Where: &WhereClause{Expr: where},
	})
}

// reduceReference turns an (id, display name) pair into the id
func reduceReference(v interface{}) interface{} {
	switch ref := v.(type) {
	case []interface{}:
		if len(ref) == 2 {
			return ref[0]
		}
	}
	return v
}

// valueList flattens any slice or array into a list of values
func valueList(v interface{}) ([]interface{}, error) {
	if list, ok := v.([]interface{}); ok {
		return list, nil
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, fmt.Errorf("%#v is not a list", v)
	}
	list := make([]interface{}, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, nil
}

func withResource(err error, resource string) error {
	if e, ok := err.(*ormerrors.Error); ok && e.Resource == "" {
		e.Resource = resource
	}
	return err
}
