// Package agentloom wires a configuration file and an agent tree into a
// ready-to-use runner. Most applications:
//  1. load a config.Config (or start from config.Default())
//  2. build their agent tree from the agent package
//  3. call New and drive invocations with Run or RunSync
//
// New opens the configured session store, builds the logger and the enabled
// observability plugins, and applies the run limits. Close releases the
// session store. Applications needing finer control use runner.New directly.
package agentloom

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/agentloom/config"
	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/logging"
	"github.com/hupe1980/agentloom/runner"
)

// Options overrides pieces New would otherwise build from the config.
type Options struct {
	// Logger replaces the configured logger.
	Logger logging.Logger
	// SessionStore replaces the configured backend. The caller keeps
	// ownership; Close does not close it.
	SessionStore core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore
	// Plugins run before the configured observability plugins.
	Plugins []core.Plugin
	// Registerer receives metrics collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// App is a configured runner plus the resources it owns.
type App struct {
	*runner.Runner
	logger     logging.Logger
	closeStore func() error
}

// New builds an App serving root. A nil cfg means config.Default().
func New(ctx context.Context, cfg *config.Config, root core.Agent, optFns ...func(o *Options)) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = cfg.NewLogger(nil)
	}

	closeStore := func() error { return nil }
	if opts.SessionStore == nil {
		store, closeFn, err := cfg.NewSessionStore(ctx, opts.Logger)
		if err != nil {
			return nil, err
		}
		opts.SessionStore, closeStore = store, closeFn
	}

	plugins := append(append([]core.Plugin{}, opts.Plugins...), cfg.Plugins(opts.Registerer)...)
	r, err := runner.New(cfg.App, root, cfg.RunnerOptions(opts.SessionStore, opts.Logger, plugins), func(o *runner.Options) {
		o.ArtifactStore = opts.ArtifactStore
		o.MemoryStore = opts.MemoryStore
	})
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}
	opts.Logger.Info("app.ready", "app", cfg.App, "root", root.Name(), "session_backend", cfg.Session.Backend)
	return &App{Runner: r, logger: opts.Logger, closeStore: closeStore}, nil
}

// Logger returns the logger the runner was built with.
func (a *App) Logger() logging.Logger { return a.logger }

// Close releases the session store New opened.
func (a *App) Close() error { return a.closeStore() }
