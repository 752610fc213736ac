package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/conduit-lang/objectserver/internal/orm/crud"
	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/domain"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Scope is the request scope of one call: the acting user, the connection
// and its open transaction. It implements schema.Env.
type Scope struct {
	id       uuid.UUID
	ctx      context.Context
	conn     database.Conn
	engine   *Engine
	userID   int64
	internal bool
}

var _ schema.Env = (*Scope)(nil)

func newScope(ctx context.Context, conn database.Conn, e *Engine, userID int64, internal bool) *Scope {
	return &Scope{
		id:       uuid.New(),
		ctx:      ctx,
		conn:     conn,
		engine:   e,
		userID:   userID,
		internal: internal,
	}
}

// ID identifies the scope in logs
func (s *Scope) ID() uuid.UUID { return s.id }

// Context returns the context of the call
func (s *Scope) Context() context.Context { return s.ctx }

// Conn returns the connection of the call
func (s *Scope) Conn() database.Conn { return s.conn }

// UserID returns the acting user
func (s *Scope) UserID() int64 { return s.userID }

// Internal reports whether access checks are bypassed
func (s *Scope) Internal() bool { return s.internal }

// Registry returns the loaded model registry
func (s *Scope) Registry() *schema.Registry { return s.engine.registry }

// Sudo returns a copy of the scope acting on behalf of the engine
func (s *Scope) Sudo() *Scope {
	sudo := *s
	sudo.internal = true
	return &sudo
}

// Model returns the CRUD engine of model
func (s *Scope) Model(name string) (*crud.Engine, error) {
	m, ok := s.engine.models[name]
	if !ok {
		return nil, ormerrors.ResourceNotFound(name, "unknown model %q", name)
	}
	return m, nil
}

// mustModel is Model for names taken from the registry
func (s *Scope) mustModel(name string) *crud.Engine {
	return s.engine.models[name]
}

// Search returns ids of model records matching d
func (s *Scope) Search(model string, d []interface{}, order []string, offset, limit int64) ([]int64, error) {
	m, err := s.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Search(s, domain.Domain(d), order, offset, limit)
}

// Read returns the requested fields of model records
func (s *Scope) Read(model string, ids []int64, fields []string) ([]schema.Record, error) {
	m, err := s.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Read(s, ids, fields)
}
