package testutil

import (
	"github.com/hupe1980/agentloom/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").State("k", "v").Events(ev1, ev2).Build()
//
// Events are appended through Session.Append, so their state deltas apply.
type SessionBuilder struct {
	app    string
	user   string
	id     string
	state  map[string]any
	events []*core.Event
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{app: "app", user: "user", id: id, state: map[string]any{}}
}

// Owner sets the app and user the session belongs to (chainable).
func (b *SessionBuilder) Owner(app, user string) *SessionBuilder {
	b.app, b.user = app, user
	return b
}

// State sets or overwrites a state key/value pair (chainable).
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Events appends events to the session history (chainable).
func (b *SessionBuilder) Events(evs ...*core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a session with pre-populated state and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.app, b.user, b.id)
	for k, v := range b.state {
		s.State[k] = v
	}
	for _, ev := range b.events {
		_ = s.Append(ev)
	}
	return s
}
