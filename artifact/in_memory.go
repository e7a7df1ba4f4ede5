package artifact

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/agentloom/core"
)

// InMemoryStore is an in‑process, versioned ArtifactStore useful for tests,
// examples and single‑process prototypes. Data is copied on save / retrieval
// to avoid accidental external mutation of internal buffers.
//
// Layout: app/user/session/filename -> versions (index i holds version i+1).
// Filenames with the "user:" prefix are stored under the user namespace and
// are visible to every session of that user.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]core.Artifact
}

// NewInMemoryStore returns an empty in‑memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string][]core.Artifact)}
}

func isUserScoped(filename string) bool { return strings.HasPrefix(filename, core.UserPrefix) }

func artifactKey(appName, userID, sessionID, filename string) string {
	if isUserScoped(filename) {
		return appName + "/" + userID + "/user/" + filename
	}
	return appName + "/" + userID + "/" + sessionID + "/" + filename
}

func copyArtifact(a core.Artifact) core.Artifact {
	a.Data = slices.Clone(a.Data)
	return a
}

// Save appends a new version and returns its number (starting at 1).
func (a *InMemoryStore) Save(_ context.Context, appName, userID, sessionID, filename string, artifact core.Artifact) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := artifactKey(appName, userID, sessionID, filename)
	a.artifacts[key] = append(a.artifacts[key], copyArtifact(artifact))
	return len(a.artifacts[key]), nil
}

// Load returns a copy of the requested version (latest when version <= 0) or
// core.ErrArtifactNotFound.
func (a *InMemoryStore) Load(_ context.Context, appName, userID, sessionID, filename string, version int) (*core.Artifact, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	versions := a.artifacts[artifactKey(appName, userID, sessionID, filename)]
	if len(versions) == 0 {
		return nil, core.ErrArtifactNotFound
	}
	if version <= 0 {
		version = len(versions)
	}
	if version > len(versions) {
		return nil, core.ErrArtifactNotFound
	}
	out := copyArtifact(versions[version-1])
	return &out, nil
}

// List returns the sorted filenames visible to the session, user-scoped ones
// included.
func (a *InMemoryStore) List(_ context.Context, appName, userID, sessionID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	sessionPrefix := appName + "/" + userID + "/" + sessionID + "/"
	userPrefix := appName + "/" + userID + "/user/"
	names := []string{}
	for key := range a.artifacts {
		switch {
		case strings.HasPrefix(key, sessionPrefix):
			names = append(names, strings.TrimPrefix(key, sessionPrefix))
		case strings.HasPrefix(key, userPrefix):
			names = append(names, strings.TrimPrefix(key, userPrefix))
		}
	}
	slices.Sort(names)
	return names, nil
}

// Versions returns the available version numbers of filename.
func (a *InMemoryStore) Versions(_ context.Context, appName, userID, sessionID, filename string) ([]int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := len(a.artifacts[artifactKey(appName, userID, sessionID, filename)])
	if n == 0 {
		return nil, core.ErrArtifactNotFound
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out, nil
}

// Delete removes every version of filename or returns core.ErrArtifactNotFound.
func (a *InMemoryStore) Delete(_ context.Context, appName, userID, sessionID, filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := artifactKey(appName, userID, sessionID, filename)
	if _, ok := a.artifacts[key]; !ok {
		return core.ErrArtifactNotFound
	}
	delete(a.artifacts, key)
	return nil
}
