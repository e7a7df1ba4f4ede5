package session

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/agentloom/core"
)

// InMemoryStore is a volatile SessionStore implementation storing
// sessions in a process local map. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Each returned session is cloned
// to prevent external mutation of internal state.
type InMemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*core.Session  // app/user/id -> session (session-scoped state only)
	appState  map[string]map[string]any // app -> app: keys
	userState map[string]map[string]any // app/user -> user: keys
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:  make(map[string]*core.Session),
		appState:  make(map[string]map[string]any),
		userState: make(map[string]map[string]any),
	}
}

func sessionKey(appName, userID, sessionID string) string {
	return appName + "/" + userID + "/" + sessionID
}

// Create stores a new session. An empty id is replaced by a generated one.
func (s *InMemoryStore) Create(_ context.Context, appName, userID, sessionID string, state map[string]any) (*core.Session, error) {
	if sessionID == "" {
		sessionID = core.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(appName, userID, sessionID)
	if _, ok := s.sessions[key]; ok {
		return nil, ErrSessionExists
	}
	scoped := SplitInitialState(state)
	sess := core.NewSession(appName, userID, sessionID)
	sess.State = scoped.Session
	s.sessions[key] = sess
	s.mergeScopesLocked(appName, userID, scoped)
	return s.viewLocked(sess, true), nil
}

// Get returns a clone of the session with app and user state merged in.
func (s *InMemoryStore) Get(_ context.Context, appName, userID, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey(appName, userID, sessionID)]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return s.viewLocked(sess, true), nil
}

// List returns the user's sessions ordered by id. Events are omitted.
func (s *InMemoryStore) List(_ context.Context, appName, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*core.Session{}
	for _, sess := range s.sessions {
		if sess.AppName == appName && sess.UserID == userID {
			out = append(out, s.viewLocked(sess, false))
		}
	}
	slices.SortFunc(out, func(a, b *core.Session) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *InMemoryStore) Delete(_ context.Context, appName, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(appName, userID, sessionID))
	return nil
}

// AppendEvent commits ev to sess and to the stored copy.
func (s *InMemoryStore) AppendEvent(_ context.Context, sess *core.Session, ev *core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.sessions[sessionKey(sess.AppName, sess.UserID, sess.ID)]
	if !ok {
		return core.ErrSessionNotFound
	}
	stored, delta, err := ApplyEvent(sess, ev)
	if err != nil {
		return err
	}
	target.ApplyDelta(delta.Session)
	target.Events = append(target.Events, stored)
	target.LastUpdateTime = stored.Timestamp
	s.mergeScopesLocked(sess.AppName, sess.UserID, delta)
	return nil
}

func (s *InMemoryStore) mergeScopesLocked(appName, userID string, delta ScopedDelta) {
	if len(delta.App) > 0 {
		if s.appState[appName] == nil {
			s.appState[appName] = map[string]any{}
		}
		maps.Copy(s.appState[appName], delta.App)
	}
	if len(delta.User) > 0 {
		key := appName + "/" + userID
		if s.userState[key] == nil {
			s.userState[key] = map[string]any{}
		}
		maps.Copy(s.userState[key], delta.User)
	}
}

func (s *InMemoryStore) viewLocked(sess *core.Session, withEvents bool) *core.Session {
	view := sess.Clone()
	view.State = MergeState(
		core.CloneMap(s.appState[sess.AppName]),
		core.CloneMap(s.userState[sess.AppName+"/"+sess.UserID]),
		view.State,
	)
	if !withEvents {
		view.Events = []*core.Event{}
	}
	return view
}
