// Package config loads a YAML runtime configuration and turns it into the
// pieces a runner needs: a logger, a session store, observability plugins,
// a model rate limiter and runner options.
//
// A minimal file:
//
//	app: support
//	run:
//	  max_llm_calls: 50
//	logging:
//	  level: debug
//	session:
//	  backend: badger
//	  path: ./data/sessions
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root of a configuration file.
type Config struct {
	App           string              `yaml:"app"`
	Run           RunConfig           `yaml:"run"`
	Logging       LoggingConfig       `yaml:"logging"`
	Session       SessionConfig       `yaml:"session"`
	Model         ModelConfig         `yaml:"model"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RunConfig bounds a single invocation.
type RunConfig struct {
	MaxLLMCalls int  `yaml:"max_llm_calls"`
	Streaming   bool `yaml:"streaming"`
	BufferSize  int  `yaml:"buffer_size"`
	// MaxConcurrentInvocations caps in-flight invocations per runner; 0 means
	// unlimited.
	MaxConcurrentInvocations int  `yaml:"max_concurrent_invocations"`
	AutoCreateSession        bool `yaml:"auto_create_session"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// SessionConfig selects and configures the session backend.
type SessionConfig struct {
	Backend string `yaml:"backend"`

	// badger
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites *bool  `yaml:"sync_writes"`

	// redis
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix"`
	MaxRetries int    `yaml:"max_retries"`
}

// ModelConfig throttles model backends. A zero RateLimitRPS disables
// throttling.
type ModelConfig struct {
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	Burst        int     `yaml:"burst"`
}

// ObservabilityConfig switches the built-in plugins on.
type ObservabilityConfig struct {
	Logging          bool   `yaml:"logging"`
	Tracing          bool   `yaml:"tracing"`
	Metrics          bool   `yaml:"metrics"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		App: "agentloom",
		Run: RunConfig{
			MaxLLMCalls: 100,
			BufferSize:  16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			Backend: BackendMemory,
		},
		Model: ModelConfig{
			Burst: 1,
		},
		Observability: ObservabilityConfig{
			MetricsNamespace: "agentloom",
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.App == "" {
		errs = append(errs, errors.New("app must not be empty"))
	}
	if c.Run.BufferSize < 0 {
		errs = append(errs, errors.New("run.buffer_size must not be negative"))
	}
	if c.Run.MaxConcurrentInvocations < 0 {
		errs = append(errs, errors.New("run.max_concurrent_invocations must not be negative"))
	}
	if _, err := c.logLevel(); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want json or text", c.Logging.Format))
	}
	switch c.Session.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Session.Path == "" && !c.Session.InMemory {
			errs = append(errs, errors.New("session.path is required for the badger backend"))
		}
	case BackendRedis:
		if c.Session.Addr == "" {
			errs = append(errs, errors.New("session.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q: want memory, badger or redis", c.Session.Backend))
	}
	if c.Model.RateLimitRPS < 0 {
		errs = append(errs, errors.New("model.rate_limit_rps must not be negative"))
	}
	if c.Model.RateLimitRPS > 0 && c.Model.Burst < 1 {
		errs = append(errs, errors.New("model.burst must be at least 1 when rate limiting"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
