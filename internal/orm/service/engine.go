// Package service runs model methods for callers. Every call gets its own
// request scope, connection and transaction; calls made from inside a call
// reuse the enclosing transaction through a savepoint.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/cache"
	"github.com/conduit-lang/objectserver/internal/orm/core"
	"github.com/conduit-lang/objectserver/internal/orm/crud"
	"github.com/conduit-lang/objectserver/internal/orm/database"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
	"github.com/conduit-lang/objectserver/internal/orm/security"
	"github.com/conduit-lang/objectserver/internal/orm/transaction"
)

// Options configures an Engine
type Options struct {
	// Isolation is the isolation level of call transactions
	Isolation transaction.IsolationLevel
	// Retry configures retries on deadlocks and serialization failures;
	// nil disables retrying
	Retry *transaction.RetryConfig
	// Timeout bounds each call; zero disables the deadline
	Timeout time.Duration
	// Cache holds access decisions; nil disables caching
	Cache cache.Cache
	// CacheTTL is the lifetime of cached decisions
	CacheTTL time.Duration
	// Metrics records call metrics; nil disables metrics
	Metrics *Collector
	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// DefaultOptions returns serializable transactions with the default retry
// policy
func DefaultOptions() Options {
	return Options{
		Isolation: transaction.Serializable,
		Retry:     transaction.DefaultRetryConfig(),
		CacheTTL:  30 * time.Second,
	}
}

// Engine serves the models of a loaded registry over one database
type Engine struct {
	registry   *schema.Registry
	provider   *database.Provider
	tx         *transaction.Manager
	filter     *security.Filter
	dispatcher *Dispatcher
	models     map[string]*crud.Engine
	metrics    *Collector
	retry      *transaction.RetryConfig
	timeout    time.Duration
	logger     *zap.Logger
}

// NewEngine creates an engine for the loaded registry r
func NewEngine(r *schema.Registry, provider *database.Provider, opts Options) (*Engine, error) {
	if !r.IsLoaded() {
		return nil, ormerrors.Definition("", "registry is not loaded")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		registry:   r,
		provider:   provider,
		tx:         transaction.NewManager(provider, opts.Isolation, logger),
		filter:     security.NewFilter(opts.Cache, opts.CacheTTL, logger),
		dispatcher: NewDispatcher(),
		models:     make(map[string]*crud.Engine, r.Count()),
		metrics:    opts.Metrics,
		retry:      opts.Retry,
		timeout:    opts.Timeout,
		logger:     logger,
	}
	for _, name := range r.List() {
		m, err := r.GetResource(name)
		if err != nil {
			return nil, err
		}
		e.models[name] = crud.NewEngine(m, r, e.filter, logger)
	}
	if err := e.dispatcher.RegisterModels(r); err != nil {
		return nil, err
	}
	return e, nil
}

// Registry returns the model registry
func (e *Engine) Registry() *schema.Registry { return e.registry }

// Dispatcher returns the method dispatcher, where extra handlers can be
// registered
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// Filter returns the access filter
func (e *Engine) Filter() *security.Filter { return e.filter }

// Execute runs method of model on behalf of userID. A context carrying the
// connection of an enclosing call reuses its transaction through a
// savepoint; otherwise the call runs in a new transaction.
func (e *Engine) Execute(ctx context.Context, userID int64, model, method string, args ...interface{}) (interface{}, error) {
	return e.execute(ctx, userID, false, model, method, args)
}

// ExecuteInternal runs method with access checks bypassed
func (e *Engine) ExecuteInternal(ctx context.Context, model, method string, args ...interface{}) (interface{}, error) {
	return e.execute(ctx, 0, true, model, method, args)
}

func (e *Engine) execute(ctx context.Context, userID int64, internal bool, model, method string, args []interface{}) (result interface{}, err error) {
	start := time.Now()
	e.metrics.begin()
	var scopeID string

	defer func() {
		elapsed := time.Since(start)
		fields := []zap.Field{
			zap.String("scope", scopeID),
			zap.String("model", model),
			zap.String("method", method),
			zap.Int64("user", userID),
			zap.Duration("duration", elapsed),
		}
		if p := recover(); p != nil {
			e.metrics.observe(model, method, fmt.Errorf("panic: %v", p), elapsed)
			e.logger.Error("call panicked", append(fields, zap.Any("panic", p))...)
			panic(p)
		}
		e.metrics.observe(model, method, err, elapsed)
		switch {
		case err == nil:
			e.logger.Debug("call", fields...)
		case ormerrors.IsRecognized(err):
			e.logger.Info("call failed", append(fields, zap.Error(err))...)
		default:
			e.logger.Error("call failed", append(fields, zap.Error(err))...)
		}
	}()

	work := func(ctx context.Context, conn database.Conn) error {
		scope := newScope(ctx, conn, e, userID, internal)
		scopeID = scope.ID().String()
		var err error
		result, err = e.dispatcher.Dispatch(scope, model, method, args)
		return err
	}

	if conn, ok := transaction.FromContext(ctx); ok {
		// the enclosing call owns the tracker and flushes after its commit
		if err := transaction.WithSavepoint(ctx, conn, work); err != nil {
			return nil, err
		}
		return result, nil
	}

	ctx, tracker := security.Track(ctx)
	err = e.tx.WithTimeoutRetry(ctx, e.timeout, e.retry, func(ctx context.Context, conn database.Conn) error {
		tracker.Reset()
		return work(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	e.flushIfDirty(ctx, tracker)
	return result, nil
}

// Run executes fn in a new transaction with an internal scope
func (e *Engine) Run(ctx context.Context, fn func(scope *Scope) error) error {
	ctx, tracker := security.Track(ctx)
	err := e.tx.WithTransaction(ctx, func(ctx context.Context, conn database.Conn) error {
		return fn(newScope(ctx, conn, e, 0, true))
	})
	if err != nil {
		return err
	}
	e.flushIfDirty(ctx, tracker)
	return nil
}

// flushIfDirty drops cached decisions once a transaction that wrote to the
// access models has committed
func (e *Engine) flushIfDirty(ctx context.Context, tracker *security.Tracker) {
	if !tracker.Dirty() {
		return
	}
	if err := e.filter.Flush(ctx); err != nil {
		e.logger.Warn("failed to flush access decisions", zap.Error(err))
	}
}

// Authenticate returns the id of the active user with login and password
func (e *Engine) Authenticate(ctx context.Context, login, password string) (int64, error) {
	v, err := e.ExecuteInternal(ctx, core.ModelUser, "authenticate", login, password)
	if err != nil {
		return 0, err
	}
	id, ok := v.(int64)
	if !ok {
		return 0, ormerrors.Data(core.ModelUser, fmt.Errorf("unexpected authenticate result %T", v))
	}
	return id, nil
}

// Close closes the decision cache and the database
func (e *Engine) Close() error {
	var firstErr error
	if err := e.filter.Close(); err != nil {
		firstErr = err
	}
	if err := e.provider.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
