package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/sfcpath/internal/catalog"
	"github.com/roach88/sfcpath/internal/config"
	"github.com/roach88/sfcpath/internal/dispatch"
	"github.com/roach88/sfcpath/internal/logging"
	"github.com/roach88/sfcpath/internal/registry"
	"github.com/roach88/sfcpath/internal/resolver"
	"github.com/roach88/sfcpath/internal/store"
)

// app is the wired set of services one command invocation works with.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *registry.Registry
	resolver *resolver.Resolver
	out      *OutputFormatter
}

// openApp loads configuration, applies flag overrides, opens the store and
// wires the registry and resolver onto it. The returned context carries
// the logger. Callers must call close.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, context.Context, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx := logging.WithLogger(parentCtx, logger)

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	policy, err := resolver.PolicyByName(cfg.Policy, cfg.PolicyExpression, st)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "invalid selection policy", err)
	}

	reg := registry.New(st, registry.WithRetries(cfg.BindRetries))
	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: reg,
		resolver: resolver.New(st, reg, resolver.WithPolicy(policy)),
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}
	return a, ctx, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// dispatcher builds a dispatcher over the app's resolver sized by config.
func (a *app) dispatcher(opts ...dispatch.Option) *dispatch.Dispatcher {
	opts = append([]dispatch.Option{dispatch.WithWorkers(a.cfg.Workers)}, opts...)
	return dispatch.New(a.resolver, opts...)
}

// seed loads the catalog in dir and applies it through the registry.
func (a *app) seed(ctx context.Context, dir string) (catalog.Catalog, catalog.Summary, error) {
	cat, err := catalog.Load(dir)
	if err != nil {
		return catalog.Catalog{}, catalog.Summary{}, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	sum, err := cat.Apply(ctx, a.store, a.registry)
	if err != nil {
		return cat, sum, WrapExitError(ExitFailure, "failed to apply catalog", err)
	}
	return cat, sum, nil
}
