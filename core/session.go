package core

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Session represents a conversational container tracking committed key/value
// state plus the ordered, append-only event log. It is safe for concurrent
// access.
//
// Contract:
//   - Append rejects partial events and applies the event's state delta
//   - temp: keys never reach State
//   - Events returns a copy of the log slice
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	ID             string         `json:"id"`
	AppName        string         `json:"app_name"`
	UserID         string         `json:"user_id"`
	State          map[string]any `json:"state"`
	Events         []*Event       `json:"events"`
	LastUpdateTime time.Time      `json:"last_update_time"`
	mu             sync.RWMutex
}

// NewSession creates an empty session.
func NewSession(appName, userID, id string) *Session {
	return &Session{
		ID:             id,
		AppName:        appName,
		UserID:         userID,
		State:          map[string]any{},
		Events:         []*Event{},
		LastUpdateTime: time.Now().UTC(),
	}
}

// GetState returns the value and existence flag for a committed state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// StateSnapshot returns a shallow copy of the committed state.
func (s *Session) StateSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.State)
}

// ApplyDelta merges delta into the committed state, skipping temp: keys.
func (s *Session) ApplyDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyDeltaLocked(delta)
}

func (s *Session) applyDeltaLocked(delta map[string]any) {
	if s.State == nil {
		s.State = map[string]any{}
	}
	for k, v := range delta {
		if ScopeOf(k) == ScopeTemp {
			continue
		}
		s.State[k] = v
	}
}

// Append commits ev to the log. Partial events are rejected with
// ErrPartialEvent. The event's state delta is applied to State and its temp:
// keys are trimmed before the event becomes part of the log.
func (s *Session) Append(ev *Event) error {
	if ev.Partial {
		return ErrPartialEvent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyDeltaLocked(ev.Actions.StateDelta)
	TrimTempDelta(ev.Actions.StateDelta)
	s.Events = append(s.Events, ev)
	s.LastUpdateTime = ev.Timestamp
	return nil
}

// GetEvents returns a copy of the event slice. The events
// themselves are shared and must not be mutated.
func (s *Session) GetEvents() []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]*Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:             s.ID,
		AppName:        s.AppName,
		UserID:         s.UserID,
		State:          CloneMap(s.State),
		Events:         make([]*Event, len(s.Events)),
		LastUpdateTime: s.LastUpdateTime,
	}
	if clone.State == nil {
		clone.State = map[string]any{}
	}
	for i, ev := range s.Events {
		clone.Events[i] = ev.Clone()
	}
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
//
// AppendEvent applies the event to sess (state delta, log) and persists it;
// implementations reject partial events with ErrPartialEvent. Get returns
// ErrSessionNotFound for unknown sessions. Returned sessions merge app: and
// user: scoped state into State.
type SessionStore interface {
	Create(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*Session, error)
	Get(ctx context.Context, appName, userID, sessionID string) (*Session, error)
	List(ctx context.Context, appName, userID string) ([]*Session, error)
	Delete(ctx context.Context, appName, userID, sessionID string) error
	AppendEvent(ctx context.Context, sess *Session, ev *Event) error
}
