package core

import "strings"

// Matcher determines whether a route pattern matches a correlation id.
type Matcher interface {
	Match(pattern string, id string) bool
}

// DefaultMatcher treats ids as dot-separated segments and supports exact
// matching, a single-segment wildcard (*), and a multi-segment
// wildcard (#) that matches zero or more segments.
//
// Examples:
//
//	"conn.42"       matches "conn.42"          (exact)
//	"conn.*"        matches "conn.42"          (single segment)
//	"conn.*"        does NOT match "conn.42.rx"
//	"conn.#"        matches "conn.42.rx"       (multi segment)
//	"conn.#"        matches "conn"
type DefaultMatcher struct{}

func (DefaultMatcher) Match(pattern, id string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(id, "."))
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case "#":
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pat[1:], segs[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(segs) == 0 {
				return false
			}
		default:
			if len(segs) == 0 || pat[0] != segs[0] {
				return false
			}
		}
		pat = pat[1:]
		segs = segs[1:]
	}
	return len(segs) == 0
}
