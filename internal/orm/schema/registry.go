package schema

import (
	"sort"
	"sync"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
)

// ResourceContainer resolves models by name for cross-model lookups
type ResourceContainer interface {
	GetResource(name string) (*Model, error)
}

// Registry manages all models of the application
type Registry struct {
	models map[string]*Model
	order  []string
	loaded bool
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Model),
	}
}

// Register adds models. Registration closes once the registry is loaded.
func (r *Registry) Register(models ...*Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return ormerrors.Definition("", "registry is already loaded")
	}

	for _, m := range models {
		if err := m.Err(); err != nil {
			return err
		}
		if _, exists := r.models[m.name]; exists {
			return ormerrors.Definition(m.name, "model is already registered")
		}
		r.models[m.name] = m
	}
	return nil
}

// Get retrieves a model by name
func (r *Registry) Get(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	return m, ok
}

// GetResource retrieves a model by name, failing with ResourceNotFound
func (r *Registry) GetResource(name string) (*Model, error) {
	m, ok := r.Get(name)
	if !ok {
		return nil, ormerrors.ResourceNotFound(name, "model %q is not registered", name)
	}
	return m, nil
}

// List returns the registered model names sorted alphabetically
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadOrder returns model names in dependency order. Empty until loaded.
func (r *Registry) LoadOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Count returns the number of registered models
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// Exists checks if a model is registered
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// IsLoaded reports whether Load completed
func (r *Registry) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.loaded
}

// Load completes every model: internal fields are added, models are sorted
// by dependency, inheritances are merged, declarations are validated and all
// descriptors are frozen. Loading an already loaded registry is a no-op.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	for _, m := range r.models {
		if err := m.Err(); err != nil {
			return err
		}
		m.addInternalFields()
	}

	order, err := NewDependencyGraph(r.models).TopologicalSort()
	if err != nil {
		return ormerrors.Definition("", "%v", err)
	}

	view := lockedView{r}
	for _, name := range order {
		if err := Merge(r.models[name], view); err != nil {
			return err
		}
	}

	for _, name := range order {
		if err := validateModel(r.models[name], r); err != nil {
			return err
		}
	}

	for _, name := range order {
		r.models[name].freeze()
	}

	r.order = order
	r.loaded = true
	return nil
}

func (r *Registry) lookup(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// lockedView resolves models while the registry lock is held
type lockedView struct {
	r *Registry
}

func (v lockedView) GetResource(name string) (*Model, error) {
	m, ok := v.r.lookup(name)
	if !ok {
		return nil, ormerrors.ResourceNotFound(name, "model %q is not registered", name)
	}
	return m, nil
}
