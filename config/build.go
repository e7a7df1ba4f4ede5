package config

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/logging"
	"github.com/hupe1980/agentloom/model"
	"github.com/hupe1980/agentloom/plugin"
	"github.com/hupe1980/agentloom/runner"
	"github.com/hupe1980/agentloom/session"
	"github.com/hupe1980/agentloom/session/badger"
	"github.com/hupe1980/agentloom/session/redis"
)

func (c *Config) logLevel() (logging.LogLevel, error) {
	return logging.ParseLevel(c.Logging.Level)
}

// NewLogger builds the configured logger writing to out. A nil out means
// stdout.
func (c *Config) NewLogger(out io.Writer) logging.Logger {
	level, _ := c.logLevel()
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    c.Logging.Format,
		Output:    out,
		AddSource: c.Logging.AddSource,
		Attrs:     map[string]any{"app": c.App},
	})
}

// NewSessionStore opens the configured backend. The returned close function
// releases the database or connection and must be called once the runner is
// done.
func (c *Config) NewSessionStore(ctx context.Context, logger logging.Logger) (core.SessionStore, func() error, error) {
	s := c.Session
	switch s.Backend {
	case BackendBadger:
		store, err := badger.New(func(o *badger.Options) {
			o.Path = s.Path
			o.InMemory = s.InMemory
			if s.SyncWrites != nil {
				o.SyncWrites = *s.SyncWrites
			}
			o.Logger = logger
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     s.Addr,
			Password: s.Password,
			DB:       s.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", s.Addr, err)
		}
		store := redis.New(client, func(o *redis.Options) {
			if s.Prefix != "" {
				o.Prefix = s.Prefix
			}
			if s.MaxRetries > 0 {
				o.MaxRetries = s.MaxRetries
			}
		})
		return store, client.Close, nil

	default:
		return session.NewInMemoryStore(), func() error { return nil }, nil
	}
}

// Plugins returns the enabled observability plugins. Metrics collectors are
// registered on reg, or on the default registerer when reg is nil.
func (c *Config) Plugins(reg prometheus.Registerer) []core.Plugin {
	var plugins []core.Plugin
	o := c.Observability
	if o.Logging {
		plugins = append(plugins, plugin.NewLoggingPlugin())
	}
	if o.Tracing {
		plugins = append(plugins, plugin.NewTracingPlugin())
	}
	if o.Metrics {
		plugins = append(plugins, plugin.NewMetricsPlugin(func(mo *plugin.MetricsOptions) {
			if reg != nil {
				mo.Registerer = reg
			}
			if o.MetricsNamespace != "" {
				mo.Namespace = o.MetricsNamespace
			}
		}))
	}
	return plugins
}

// RateLimiter returns the shared model limiter, or nil when throttling is
// off.
func (c *Config) RateLimiter() *rate.Limiter {
	if c.Model.RateLimitRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.Model.RateLimitRPS), c.Model.Burst)
}

// WrapModel applies limiter to m. Pass the same limiter for every model that
// should share one budget.
func WrapModel(m model.Model, limiter *rate.Limiter) model.Model {
	if limiter == nil {
		return m
	}
	return model.WithRateLimit(m, limiter)
}

// RunnerOptions copies the run section and the given components into runner
// options.
func (c *Config) RunnerOptions(store core.SessionStore, logger logging.Logger, plugins []core.Plugin) func(o *runner.Options) {
	return func(o *runner.Options) {
		o.RunConfig = core.RunConfig{
			MaxLLMCalls: c.Run.MaxLLMCalls,
			Streaming:   c.Run.Streaming,
			BufferSize:  c.Run.BufferSize,
		}
		o.AutoCreateSession = c.Run.AutoCreateSession
		o.MaxConcurrentInvocations = c.Run.MaxConcurrentInvocations
		if store != nil {
			o.SessionStore = store
		}
		if logger != nil {
			o.Logger = logger
		}
		o.Plugins = append(o.Plugins, plugins...)
	}
}
