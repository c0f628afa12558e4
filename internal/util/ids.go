package util

import (
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var reLinkedRef = regexp.MustCompile(`\[\[([^][]+)\]\]`)

// NewTraceID returns a short random identifier for tagging one question's
// execution trace across log lines and queue messages.
func NewTraceID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "trace-unknown"
	}
	return id
}

// ExtractLinkedRefs returns the identifiers embedded in a text value as
// [[id]] markers, in order of appearance and deduplicated.
func ExtractLinkedRefs(s string) []string {
	matches := reLinkedRef.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		refs = append(refs, m[1])
	}
	return refs
}

// StripLinkedRefs removes [[id]] markers from a text value, leaving the
// plain content behind.
func StripLinkedRefs(s string) string {
	return reLinkedRef.ReplaceAllString(s, "$1")
}
