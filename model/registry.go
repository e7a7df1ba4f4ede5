package model

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
)

// ErrRegistryClosed is returned by Resolve and Register after Close.
var ErrRegistryClosed = errors.New("model registry closed")

// ErrModelNotFound is returned when no registered pattern matches a name.
var ErrModelNotFound = errors.New("model not found")

// Factory builds a model for a resolved name.
type Factory func(name string) (Model, error)

type registration struct {
	pattern *regexp.Regexp
	factory Factory
}

// Registry maps model names to backends. Patterns are full-match regular
// expressions tried in registration order; resolved instances are cached per
// name. A Registry is an explicit object owned by its creator, who must Close
// it to release backend resources.
type Registry struct {
	mu       sync.Mutex
	entries  []registration
	resolved map[string]Model
	closed   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolved: make(map[string]Model)}
}

// Register adds a factory for names fully matching pattern.
func (r *Registry) Register(pattern string, factory Factory) error {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return fmt.Errorf("model registry: invalid pattern %q: %w", pattern, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	r.entries = append(r.entries, registration{pattern: re, factory: factory})
	return nil
}

// RegisterModel binds one exact name to an already constructed model.
func (r *Registry) RegisterModel(name string, m Model) error {
	return r.Register(regexp.QuoteMeta(name), func(string) (Model, error) { return m, nil })
}

// Resolve returns the cached model for name, building it on first use.
func (r *Registry) Resolve(name string) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if m, ok := r.resolved[name]; ok {
		return m, nil
	}
	for _, e := range r.entries {
		if !e.pattern.MatchString(name) {
			continue
		}
		m, err := e.factory(name)
		if err != nil {
			return nil, fmt.Errorf("model registry: build %q: %w", name, err)
		}
		r.resolved[name] = m
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

// Close closes every resolved model implementing io.Closer. Models resolved
// under several names are closed once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	seen := map[io.Closer]struct{}{}
	var errs []error
	for name, m := range r.resolved {
		c, ok := m.(io.Closer)
		if !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.resolved = nil
	return errors.Join(errs...)
}
