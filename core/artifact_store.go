package core

import (
	"context"
	"errors"
)

// ErrArtifactNotFound is returned when a filename or version does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is one stored version of a named blob.
type Artifact struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type,omitempty"`
}

// ArtifactStore defines versioned artifact persistence keyed by app, user,
// session and filename. Filenames prefixed with "user:" are scoped to the
// user rather than the session. Save returns the new version, starting at 1;
// Load with version <= 0 returns the latest version.
type ArtifactStore interface {
	Save(ctx context.Context, appName, userID, sessionID, filename string, artifact Artifact) (int, error)
	Load(ctx context.Context, appName, userID, sessionID, filename string, version int) (*Artifact, error)
	List(ctx context.Context, appName, userID, sessionID string) ([]string, error)
	Versions(ctx context.Context, appName, userID, sessionID, filename string) ([]int, error)
	Delete(ctx context.Context, appName, userID, sessionID, filename string) error
}
