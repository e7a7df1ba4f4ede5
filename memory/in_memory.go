package memory

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/agentloom/core"
)

// InMemoryStore is a naive process‑local MemoryStore. Sessions are indexed per
// app/user; AddSession replaces any previously ingested copy of the same
// session so re-ingesting after more turns does not duplicate entries.
//
// Search: linear scan with case-insensitive keyword matching. An event matches
// when any query word appears among its words. Suitable only for tests / demos;
// swap for a vector DB or semantic index for production retrieval.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string][]core.MemoryEntry // app/user -> sessionID -> entries
}

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]map[string][]core.MemoryEntry)}
}

func userKey(appName, userID string) string { return appName + "/" + userID }

// AddSession ingests every text-bearing event of sess.
func (m *InMemoryStore) AddSession(_ context.Context, sess *core.Session) error {
	var entries []core.MemoryEntry
	for _, ev := range sess.GetEvents() {
		if ev.Content == nil || ev.Content.Text() == "" {
			continue
		}
		entries = append(entries, core.MemoryEntry{
			Content:   ev.Content.Clone(),
			Author:    ev.Author,
			Timestamp: ev.Timestamp,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := userKey(sess.AppName, sess.UserID)
	if _, ok := m.sessions[key]; !ok {
		m.sessions[key] = make(map[string][]core.MemoryEntry)
	}
	m.sessions[key][sess.ID] = entries
	return nil
}

// Search returns entries of the user's sessions sharing at least one word with
// query. An empty query matches nothing.
func (m *InMemoryStore) Search(_ context.Context, appName, userID, query string) ([]core.MemoryEntry, error) {
	words := tokenize(query)
	if len(words) == 0 {
		return []core.MemoryEntry{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []core.MemoryEntry{}
	for _, entries := range m.sessions[userKey(appName, userID)] {
		for _, e := range entries {
			if matches(tokenize(e.Content.Text()), words) {
				results = append(results, e)
			}
		}
	}
	return results, nil
}

func tokenize(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}

func matches(haystack, query map[string]struct{}) bool {
	for w := range query {
		if _, ok := haystack[w]; ok {
			return true
		}
	}
	return false
}
