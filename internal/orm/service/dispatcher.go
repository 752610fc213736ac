package service

import (
	"fmt"
	"sort"
	"sync"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Generic service methods every model exposes
const (
	MethodCount         = "count"
	MethodSearch        = "search"
	MethodCreate        = "create"
	MethodRead          = "read"
	MethodWrite         = "write"
	MethodDelete        = "delete"
	MethodNameGet       = "name_get"
	MethodDefaultValues = "default_values"
)

// Handler serves one (model, method) pair. Arguments arrive untyped, as
// decoded from the wire, and are coerced by the handler.
type Handler func(scope *Scope, args []interface{}) (interface{}, error)

type methodKey struct {
	model  string
	method string
}

// Dispatcher routes calls to the handler registered for (model, method)
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[methodKey]Handler
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[methodKey]Handler)}
}

// Register adds a handler. Registering a pair twice is a definition error.
func (d *Dispatcher) Register(model, method string, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := methodKey{model: model, method: method}
	if _, exists := d.handlers[key]; exists {
		return ormerrors.Definition(model, "method %q is already registered", method)
	}
	d.handlers[key] = h
	return nil
}

// Lookup returns the handler of (model, method)
func (d *Dispatcher) Lookup(model, method string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[methodKey{model: model, method: method}]
	return h, ok
}

// Methods returns the sorted method names registered for model
func (d *Dispatcher) Methods(model string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	for key := range d.handlers {
		if key.model == model {
			names = append(names, key.method)
		}
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the handler of (model, method) in scope
func (d *Dispatcher) Dispatch(scope *Scope, model, method string, args []interface{}) (interface{}, error) {
	h, ok := d.Lookup(model, method)
	if !ok {
		if _, known := scope.Registry().Get(model); !known {
			return nil, ormerrors.ResourceNotFound(model, "unknown model %q", model)
		}
		return nil, ormerrors.ResourceNotFound(model, "unknown method %q", method)
	}
	return h(scope, args)
}

// RegisterModels registers the generic methods of every model of r, plus
// the methods the models declare themselves
func (d *Dispatcher) RegisterModels(r *schema.Registry) error {
	for _, name := range r.List() {
		m, err := r.GetResource(name)
		if err != nil {
			return err
		}
		for method, h := range genericHandlers(name) {
			if err := d.Register(name, method, h); err != nil {
				return err
			}
		}
		for _, method := range m.Methods() {
			fn, _ := m.LookupMethod(method)
			if err := d.Register(name, method, modelMethod(fn)); err != nil {
				return err
			}
		}
	}
	return nil
}

func modelMethod(fn schema.MethodFunc) Handler {
	return func(scope *Scope, args []interface{}) (interface{}, error) {
		return fn(scope, args)
	}
}

func genericHandlers(model string) map[string]Handler {
	return map[string]Handler{
		MethodCount: func(s *Scope, args []interface{}) (interface{}, error) {
			a := arguments{model: model, method: MethodCount, args: args}
			if err := a.count(0, 1); err != nil {
				return nil, err
			}
			d, err := a.domain(0)
			if err != nil {
				return nil, err
			}
			return s.mustModel(model).Count(s, d)
		},
		MethodSearch: func(s *Scope, args []interface{}) (interface{}, error) {
			a := arguments{model: model, method: MethodSearch, args: args}
			if err := a.count(0, 4); err != nil {
				return nil, err
			}
			d, err := a.domain(0)
			if err != nil {
				return nil, err
			}
			order, err := a.strings(1)
			if err != nil {
				return nil, err
			}
			offset, err := a.int64(2)
			if err != nil {
				return nil, err
			}
			limit, err := a.int64(3)
			if err != nil {
				return nil, err
			}
			return s.mustModel(model).Search(s, d, order, offset, limit)
		},
		MethodCreate: func(s *Scope, args []interface{}) (interface{}, error) {
			a := arguments{model: model, method: MethodCreate, args: args}
			if err := a.count(1, 1); err != nil {
				return nil, err
			}
			values, err := a.record(0)
			if err != nil {
				return nil, err
			}
			return s.mustModel(model).Create(s, values)
		},
		MethodRead: func(s *Scope, args []interface{}) (interface{}, error) {
			a := arguments{model: model, method: MethodRead, args: args}
			if err := a.count(1, 2); err != nil {
				return nil, err
			}
			ids, err := a.ids(0)
			if err != nil {
				return nil, err
			}
			fields, err := a.strings(1)
			if err != nil {
				return nil, err
			}
			return s.mustModel(model).Read(s, ids, fields)
		},
		MethodWrite: func(s *Scope, args []interface{}) (interface{}, error) {
			a := arguments{model: model, method: MethodWrite, args: args}
			if err := a.count(2, 2); err != nil {
				return nil, err
			}
			id, err := a.int64(0)
			if err != nil {
				return nil, err
			}
			values, err := a.record(1)
			if err != nil {
				return nil, err
			}
			return nil, s.mustModel(model).Write(s, id, values)
		},
		MethodDelete: func(s *Scope, args []interface{}) (interface{}, error) {
			a := arguments{model: model, method: MethodDelete, args: args}
			if err := a.count(1, 1); err != nil {
				return nil, err
			}
			ids, err := a.ids(0)
			if err != nil {
				return nil, err
			}
			return nil, s.mustModel(model).Delete(s, ids)
		},
		MethodNameGet: func(s *Scope, args []interface{}) (interface{}, error) {
			a := arguments{model: model, method: MethodNameGet, args: args}
			if err := a.count(1, 1); err != nil {
				return nil, err
			}
			ids, err := a.ids(0)
			if err != nil {
				return nil, err
			}
			return s.mustModel(model).NameGet(s, ids)
		},
		MethodDefaultValues: func(s *Scope, args []interface{}) (interface{}, error) {
			a := arguments{model: model, method: MethodDefaultValues, args: args}
			if err := a.count(0, 1); err != nil {
				return nil, err
			}
			fields, err := a.strings(0)
			if err != nil {
				return nil, err
			}
			return s.mustModel(model).DefaultValues(s, fields)
		},
	}
}

func argumentError(model, method string, format string, args ...interface{}) error {
	return ormerrors.Argument(model, "%s: %s", method, fmt.Sprintf(format, args...))
}
