package session

import (
	"errors"
	"maps"

	"github.com/hupe1980/agentloom/core"
)

// ErrSessionExists is returned by Create when the id is already taken.
var ErrSessionExists = errors.New("session already exists")

// ScopedDelta is a state delta split by persistence scope. Keys keep their
// prefixes.
type ScopedDelta struct {
	App     map[string]any
	User    map[string]any
	Session map[string]any
}

// IsEmpty reports whether no scope carries a change.
func (d ScopedDelta) IsEmpty() bool {
	return len(d.App) == 0 && len(d.User) == 0 && len(d.Session) == 0
}

// SplitStateDelta partitions delta by key prefix. temp: keys are dropped.
func SplitStateDelta(delta map[string]any) ScopedDelta {
	out := ScopedDelta{App: map[string]any{}, User: map[string]any{}, Session: map[string]any{}}
	for k, v := range delta {
		switch core.ScopeOf(k) {
		case core.ScopeApp:
			out.App[k] = v
		case core.ScopeUser:
			out.User[k] = v
		case core.ScopeSession:
			out.Session[k] = v
		}
	}
	return out
}

// MergeState builds the state view of a session from its three durable
// scopes.
func MergeState(appState, userState, sessionState map[string]any) map[string]any {
	out := make(map[string]any, len(appState)+len(userState)+len(sessionState))
	maps.Copy(out, sessionState)
	maps.Copy(out, appState)
	maps.Copy(out, userState)
	return out
}

// ApplyEvent commits ev to the caller's session and returns the copy a backend
// should persist together with its scoped delta. Partial events are rejected
// with core.ErrPartialEvent and leave sess untouched.
func ApplyEvent(sess *core.Session, ev *core.Event) (*core.Event, ScopedDelta, error) {
	if ev.Partial {
		return nil, ScopedDelta{}, core.ErrPartialEvent
	}
	delta := SplitStateDelta(ev.Actions.StateDelta)
	if err := sess.Append(ev); err != nil {
		return nil, ScopedDelta{}, err
	}
	return ev.Clone(), delta, nil
}

// SplitInitialState partitions the state passed to Create the same way event
// deltas are split.
func SplitInitialState(state map[string]any) ScopedDelta {
	return SplitStateDelta(core.CloneMap(state))
}
