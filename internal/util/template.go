package util

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{+[^{}]*\}+`)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const artifactPrefix = "artifact."

// Lookup resolves one placeholder. Artifact placeholders are passed with the
// "artifact." prefix intact.
type Lookup func(key string) (string, bool, error)

// InjectState replaces {key} placeholders in text. "{key?}" renders as empty
// when the key is missing; a missing required key is an error. Placeholders
// whose name is not a valid (optionally app:, user: or temp: prefixed) state
// key or artifact reference are left untouched, as are doubled braces.
func InjectState(text string, lookup Lookup) (string, error) {
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		if strings.HasPrefix(match, "{{") {
			return match
		}
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")

		if !strings.HasPrefix(name, artifactPrefix) && !validStateName(name) {
			return match
		}

		value, ok, err := lookup(name)
		if err != nil {
			firstErr = err
			return match
		}
		if !ok {
			if optional {
				return ""
			}
			firstErr = fmt.Errorf("context variable not found: %q", name)
			return match
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func validStateName(name string) bool {
	for _, prefix := range []string{"app:", "user:", "temp:"} {
		if strings.HasPrefix(name, prefix) {
			return identifierRe.MatchString(strings.TrimPrefix(name, prefix))
		}
	}
	return identifierRe.MatchString(name)
}
