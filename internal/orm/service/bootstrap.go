package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/core"
	"github.com/conduit-lang/objectserver/internal/orm/database"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/hierarchy"
	"github.com/conduit-lang/objectserver/internal/orm/migrate"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// adminKey is the model data key of the administrator
const adminKey = "user_admin"

// InitReport summarizes an Init run
type InitReport struct {
	Sync         []*migrate.SyncReport
	AdminID      int64
	AdminCreated bool
}

// Init creates missing tables, synchronizes the catalog and creates the
// administrator with adminPassword when it does not exist yet. Running it
// again is harmless.
func (e *Engine) Init(ctx context.Context, adminPassword string) (*InitReport, error) {
	report := &InitReport{}
	err := e.Run(ctx, func(scope *Scope) error {
		reports, err := e.sync(scope)
		if err != nil {
			return err
		}
		report.Sync = reports

		report.AdminID, report.AdminCreated, err = e.ensureAdmin(scope, adminPassword)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("database initialized",
		zap.Int64("admin", report.AdminID),
		zap.Bool("admin_created", report.AdminCreated))
	return report, nil
}

// Sync creates missing tables and columns and synchronizes the catalog
func (e *Engine) Sync(ctx context.Context) ([]*migrate.SyncReport, error) {
	var reports []*migrate.SyncReport
	err := e.Run(ctx, func(scope *Scope) error {
		var err error
		reports, err = e.sync(scope)
		return err
	})
	return reports, err
}

func (e *Engine) sync(scope *Scope) ([]*migrate.SyncReport, error) {
	ctx, conn := scope.Context(), scope.Conn()
	if err := migrate.NewTableBuilder(conn.Dialect(), e.registry, e.logger).EnsureAll(ctx, conn, e.registry); err != nil {
		return nil, err
	}
	reports, err := migrate.NewSynchronizer(e.logger).SyncAll(ctx, conn, e.registry)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		e.metrics.synced(r.Model, r.Writes())
	}
	return reports, nil
}

func (e *Engine) ensureAdmin(scope *Scope, password string) (int64, bool, error) {
	ctx, conn := scope.Context(), scope.Conn()
	var data migrate.ModelData

	id, err := data.Lookup(ctx, conn, core.ModelUser, adminKey)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, ormerrors.ErrResourceNotFound) {
		return 0, false, err
	}

	users, err := scope.Model(core.ModelUser)
	if err != nil {
		return 0, false, err
	}
	id, err = users.Create(scope, schema.Record{
		"name":     "Administrator",
		"login":    core.AdminLogin,
		"password": password,
		"admin":    true,
	})
	if err != nil {
		return 0, false, err
	}
	if err := data.Register(ctx, conn, "core", core.ModelUser, adminKey, id); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// VerifyTree returns the nodes of a hierarchical model whose stored
// interval disagrees with the parent links
func (e *Engine) VerifyTree(ctx context.Context, model string) ([]hierarchy.Violation, error) {
	var violations []hierarchy.Violation
	err := e.tree(ctx, model, func(ctx context.Context, conn database.Conn, tree *hierarchy.Manager) error {
		var err error
		violations, err = tree.Verify(ctx, conn)
		return err
	})
	return violations, err
}

// RebuildTree recomputes the intervals of a hierarchical model from the
// parent links and returns the number of rows rewritten
func (e *Engine) RebuildTree(ctx context.Context, model string) (int, error) {
	var n int
	err := e.tree(ctx, model, func(ctx context.Context, conn database.Conn, tree *hierarchy.Manager) error {
		if err := tree.Lock(ctx, conn); err != nil {
			return err
		}
		var err error
		n, err = tree.Rebuild(ctx, conn)
		return err
	})
	return n, err
}

func (e *Engine) tree(ctx context.Context, model string, fn func(context.Context, database.Conn, *hierarchy.Manager) error) error {
	m, err := e.registry.GetResource(model)
	if err != nil {
		return err
	}
	if !m.IsHierarchy() {
		return ormerrors.Argument(model, "model is not hierarchical")
	}
	return e.Run(ctx, func(scope *Scope) error {
		conn := scope.Conn()
		return fn(scope.Context(), conn, hierarchy.NewManager(m, conn.Dialect(), e.logger))
	})
}
