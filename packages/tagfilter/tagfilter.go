// Package tagfilter decides which test cases are selected by their tags. A test case the
// filter rejects is still walked, but bypassed.
package tagfilter

import "strings"

// Filter reports whether a test case carrying tags should execute.
type Filter interface {
	Filter(tags []string) bool
}

type Func func(tags []string) bool

func (f Func) Filter(tags []string) bool {
	return f(tags)
}

// All selects every test case.
var All Filter = Func(func([]string) bool { return true })

// Set selects test cases by include and exclude patterns. Patterns may start or end with
// '*'. A leading '@' is ignored on both patterns and tags.
type Set struct {
	include []string
	exclude []string
}

// NewSet returns a filter selecting test cases that carry any include pattern (or every
// test case when include is empty) and none of the exclude patterns.
func NewSet(include, exclude []string) *Set {
	return &Set{include: normalize(include), exclude: normalize(exclude)}
}

func (s *Set) Filter(tags []string) bool {
	tags = normalize(tags)
	if hasAnyTag(tags, s.exclude) {
		return false
	}
	return len(s.include) == 0 || hasAnyTag(tags, s.include)
}

// Empty reports whether the set selects everything.
func (s *Set) Empty() bool {
	return len(s.include) == 0 && len(s.exclude) == 0
}

// Parse splits a comma separated flag value into patterns.
func Parse(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalize(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "@")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func hasAnyTag(tags []string, patterns []string) bool {
	for _, p := range patterns {
		for _, tag := range tags {
			if matchesPattern(tag, p) {
				return true
			}
		}
	}
	return false
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	if pattern == "*" {
		return true
	}

	if pattern[0] == '*' && pattern[len(pattern)-1] == '*' {
		return strings.Contains(name, pattern[1:len(pattern)-1])
	}
	if pattern[0] == '*' {
		return strings.HasSuffix(name, pattern[1:])
	}
	if pattern[len(pattern)-1] == '*' {
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return name == pattern
}
