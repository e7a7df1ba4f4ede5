package core

import (
	"context"
	"time"
)

// MemoryEntry is one recalled piece of past conversation.
type MemoryEntry struct {
	Content   *Content  `json:"content"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryStore ingests finished sessions and recalls their content by query.
// Implementations may back Search with embeddings, keywords or any heuristic.
type MemoryStore interface {
	AddSession(ctx context.Context, sess *Session) error
	Search(ctx context.Context, appName, userID, query string) ([]MemoryEntry, error)
}
