package service

import (
	"github.com/spf13/cast"

	"github.com/conduit-lang/objectserver/internal/orm/domain"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// arguments coerces positional call arguments. Missing optional arguments
// and nils yield zero values.
type arguments struct {
	model  string
	method string
	args   []interface{}
}

func (a arguments) count(min, max int) error {
	if len(a.args) < min || len(a.args) > max {
		if min == max {
			return argumentError(a.model, a.method, "expects %d arguments, got %d", min, len(a.args))
		}
		return argumentError(a.model, a.method, "expects %d to %d arguments, got %d", min, max, len(a.args))
	}
	return nil
}

func (a arguments) at(i int) interface{} {
	if i >= len(a.args) {
		return nil
	}
	return a.args[i]
}

func (a arguments) domain(i int) (domain.Domain, error) {
	switch v := a.at(i).(type) {
	case nil:
		return nil, nil
	case domain.Domain:
		return v, nil
	case []interface{}:
		return domain.Domain(v), nil
	default:
		return nil, argumentError(a.model, a.method, "argument %d: %T is not a domain", i+1, v)
	}
}

func (a arguments) strings(i int) ([]string, error) {
	v := a.at(i)
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(string); ok {
		return nil, argumentError(a.model, a.method, "argument %d: expected a list of names", i+1)
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, argumentError(a.model, a.method, "argument %d: %v", i+1, err)
	}
	return out, nil
}

func (a arguments) int64(i int) (int64, error) {
	v := a.at(i)
	if v == nil {
		return 0, nil
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, argumentError(a.model, a.method, "argument %d: %v", i+1, err)
	}
	return n, nil
}

func (a arguments) ids(i int) ([]int64, error) {
	switch v := a.at(i).(type) {
	case nil:
		return nil, nil
	case []int64:
		return v, nil
	default:
		items, err := cast.ToSliceE(v)
		if err != nil {
			return nil, argumentError(a.model, a.method, "argument %d: expected a list of ids", i+1)
		}
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			id, err := cast.ToInt64E(item)
			if err != nil {
				return nil, argumentError(a.model, a.method, "argument %d: %v", i+1, err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
}

func (a arguments) record(i int) (schema.Record, error) {
	switch v := a.at(i).(type) {
	case schema.Record:
		return v, nil
	case nil:
		return nil, argumentError(a.model, a.method, "argument %d: values are required", i+1)
	default:
		values, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, argumentError(a.model, a.method, "argument %d: %v", i+1, err)
		}
		return schema.Record(values), nil
	}
}
