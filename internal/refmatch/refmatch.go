// Package refmatch decides whether a pushed ref qualifies for a build.
package refmatch

import (
	"path"
	"strings"
)

// Match reports whether ref matches the whitelist. The whitelist is one
// pattern per line; blank lines are skipped. A pattern containing glob meta
// characters is matched with path.Match, anything else is an exact match.
// An empty whitelist matches every ref; the first matching pattern wins.
func Match(ref, whitelist string) bool {
	patterns := Patterns(whitelist)
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchOne(ref, p) {
			return true
		}
	}
	return false
}

// Patterns splits a whitelist into its non-blank trimmed lines.
func Patterns(whitelist string) []string {
	var out []string
	for _, line := range strings.Split(whitelist, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func matchOne(ref, pattern string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, ref)
		return err == nil && ok
	}
	return ref == pattern
}
