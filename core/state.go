package core

import (
	"maps"
	"strings"
	"sync"
)

// State key prefixes. Prefixes are disjoint namespaces: a key belongs to
// exactly one scope.
const (
	// AppPrefix marks keys shared by every user and session of an app.
	AppPrefix = "app:"
	// UserPrefix marks keys shared by every session of one user.
	UserPrefix = "user:"
	// TempPrefix marks invocation-scoped keys that are never persisted.
	TempPrefix = "temp:"
)

// Scope identifies where a state key lives.
type Scope int

const (
	ScopeSession Scope = iota
	ScopeApp
	ScopeUser
	ScopeTemp
)

// ScopeOf returns the scope encoded in key's prefix.
func ScopeOf(key string) Scope {
	switch {
	case strings.HasPrefix(key, AppPrefix):
		return ScopeApp
	case strings.HasPrefix(key, UserPrefix):
		return ScopeUser
	case strings.HasPrefix(key, TempPrefix):
		return ScopeTemp
	default:
		return ScopeSession
	}
}

// TrimTempDelta removes temp: keys from delta in place.
func TrimTempDelta(delta map[string]any) {
	for k := range delta {
		if ScopeOf(k) == ScopeTemp {
			delete(delta, k)
		}
	}
}

// TempState holds the temp: keys of one invocation. It is shared by every
// context derived from the invocation and discarded with it.
type TempState struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewTempState returns an empty invocation-scoped layer.
func NewTempState() *TempState { return &TempState{values: map[string]any{}} }

// Get returns a temp value.
func (t *TempState) Get(key string) (any, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key]
	return v, ok
}

// Absorb copies the temp: keys of delta into the layer.
func (t *TempState) Absorb(delta map[string]any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range delta {
		if ScopeOf(k) == ScopeTemp {
			t.values[k] = v
		}
	}
}

// State is the two-layer key/value view handed to callbacks and tools. Writes
// land in the delta layer (the StateDelta of the owning context's actions);
// reads check the delta first, then the invocation's temp layer, then the
// committed session state.
type State struct {
	session *Session
	temp    *TempState
	actions *EventActions
}

// NewState builds a view over the committed session and a delta buffer.
func NewState(session *Session, temp *TempState, actions *EventActions) *State {
	if actions == nil {
		actions = &EventActions{}
	}
	return &State{session: session, temp: temp, actions: actions}
}

// Get reads a key, delta layer first.
func (s *State) Get(key string) (any, bool) {
	if v, ok := s.actions.StateDelta[key]; ok {
		return v, true
	}
	if ScopeOf(key) == ScopeTemp {
		return s.temp.Get(key)
	}
	if s.session == nil {
		return nil, false
	}
	return s.session.GetState(key)
}

// GetString is a convenience accessor returning "" for missing or non-string values.
func (s *State) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Set stages a write in the delta layer.
func (s *State) Set(key string, value any) {
	if s.actions.StateDelta == nil {
		s.actions.StateDelta = map[string]any{}
	}
	s.actions.StateDelta[key] = value
}

// HasDelta reports whether any write is staged.
func (s *State) HasDelta() bool { return len(s.actions.StateDelta) > 0 }

// Delta returns a copy of the staged writes.
func (s *State) Delta() map[string]any { return maps.Clone(s.actions.StateDelta) }

// ToMap returns the merged view of committed state and staged writes.
func (s *State) ToMap() map[string]any {
	out := map[string]any{}
	if s.session != nil {
		out = s.session.StateSnapshot()
	}
	if s.temp != nil {
		s.temp.mu.RLock()
		maps.Copy(out, s.temp.values)
		s.temp.mu.RUnlock()
	}
	maps.Copy(out, s.actions.StateDelta)
	return out
}
