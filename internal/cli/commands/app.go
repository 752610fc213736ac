package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/cli/config"
	"github.com/conduit-lang/objectserver/internal/cli/ui"
	"github.com/conduit-lang/objectserver/internal/logging"
	"github.com/conduit-lang/objectserver/internal/orm/cache"
	"github.com/conduit-lang/objectserver/internal/orm/core"
	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
	"github.com/conduit-lang/objectserver/internal/orm/service"
)

// app holds what a command needs to talk to the database
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *service.Engine
	metrics *prometheus.Registry
	noColor bool
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, &config.Error{Err: err}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	registry, err := loadRegistry(opts.registrars)
	if err != nil {
		return nil, err
	}

	provider, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxOpenConns > 0 {
		provider.DB().SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	engineOpts := service.DefaultOptions()
	engineOpts.Isolation = cfg.IsolationLevel()
	engineOpts.Retry = cfg.RetryConfig()
	engineOpts.Timeout = cfg.Transaction.Timeout
	engineOpts.CacheTTL = cfg.Cache.TTL
	engineOpts.Logger = logger

	if cfg.Cache.Backend != config.CacheDisabled {
		c, err := cache.New(ctx, cfg.CacheConfig())
		if err != nil {
			provider.Close()
			return nil, err
		}
		engineOpts.Cache = c
	}

	a := &app{cfg: cfg, logger: logger, noColor: opts.noColor}
	if cfg.Metrics.Enabled {
		a.metrics = prometheus.NewRegistry()
		engineOpts.Metrics = service.NewCollectorWithRegistry(a.metrics)
	}

	a.engine, err = service.NewEngine(registry, provider, engineOpts)
	if err != nil {
		if engineOpts.Cache != nil {
			engineOpts.Cache.Close()
		}
		provider.Close()
		return nil, err
	}
	return a, nil
}

func loadRegistry(registrars []Registrar) (*schema.Registry, error) {
	r := schema.NewRegistry()
	if err := core.Register(r); err != nil {
		return nil, err
	}
	for _, register := range registrars {
		if err := register(r); err != nil {
			return nil, err
		}
	}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close writes the metrics textfile and releases the engine
func (a *app) Close() error {
	if a.metrics != nil && a.cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.metrics); err != nil {
			a.logger.Warn("failed to write metrics textfile",
				zap.String("path", a.cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	err := a.engine.Close()
	_ = a.logger.Sync()
	return err
}

// withApp opens the app around fn
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(*app) error) error {
	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(cfgErr.Error(), opts.noColor))
			return errReported
		}
		return err
	}
	defer a.Close()
	return fn(a)
}

// callFailed prints an engine error and marks it as reported
func (a *app) callFailed(w io.Writer, err error) error {
	fmt.Fprint(w, ui.CallError(err, a.engine.Registry().List(), a.noColor))
	return errReported
}
