// Package disallow decides whether article URLs may be fetched, using a
// configured list of deny-only path patterns.
package disallow

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter matches URL paths against compiled deny patterns. It is immutable
// after construction and safe for concurrent use.
type Filter struct {
	base     string
	raw      []string
	patterns []*regexp.Regexp
}

// New compiles patterns (Go regexp syntax, unanchored) relative to base.
func New(base string, patterns []string) (*Filter, error) {
	f := &Filter{
		base:     strings.TrimRight(strings.TrimSpace(base), "/"),
		raw:      make([]string, 0, len(patterns)),
		patterns: make([]*regexp.Regexp, 0, len(patterns)),
	}
	for i, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("disallow pattern[%d] %q: %w", i, p, err)
		}
		f.raw = append(f.raw, p)
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// Allowed reports whether the URL passes every pattern. The first match denies.
func (f *Filter) Allowed(url string) bool {
	if f == nil {
		return true
	}
	path := f.Path(url)
	for _, re := range f.patterns {
		if re.MatchString(path) {
			return false
		}
	}
	return true
}

// Match returns the first pattern denying url, if any.
func (f *Filter) Match(url string) (string, bool) {
	if f == nil {
		return "", false
	}
	path := f.Path(url)
	for i, re := range f.patterns {
		if re.MatchString(path) {
			return f.raw[i], true
		}
	}
	return "", false
}

// Path strips the configured base prefix from url.
func (f *Filter) Path(url string) string {
	if f == nil || f.base == "" {
		return url
	}
	return strings.TrimPrefix(url, f.base)
}

// Patterns returns a copy of the active pattern list.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.raw))
	copy(out, f.raw)
	return out
}

// Len returns the number of active patterns.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}
