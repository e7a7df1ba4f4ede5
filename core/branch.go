package core

import "strings"

// JoinBranch extends parent with the given segments.
func JoinBranch(parent string, segments ...string) string {
	joined := strings.Join(segments, ".")
	if parent == "" {
		return joined
	}
	return parent + "." + joined
}

// BranchVisible reports whether an event recorded on eventBranch is visible to
// a context on branch. Root events (empty branch) are visible everywhere;
// otherwise the event's branch must be the context's branch or one of its
// ancestors, compared segment by segment.
func BranchVisible(eventBranch, branch string) bool {
	if eventBranch == "" || eventBranch == branch {
		return true
	}
	return strings.HasPrefix(branch, eventBranch+".")
}
