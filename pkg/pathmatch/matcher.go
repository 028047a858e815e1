// Package pathmatch decides which paths are excluded from bookmarking.
package pathmatch

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// Matcher holds compiled exclude patterns. A nil *Matcher matches nothing.
type Matcher struct {
	patterns []glob.Glob
	sources  []string
}

// New compiles patterns with '/' as the separator, so "*" stays within one
// path segment and "**" crosses segments.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		m.patterns = append(m.patterns, g)
		m.sources = append(m.sources, pattern)
	}
	return m, nil
}

// Match reports whether path matches any pattern. The path is compared both
// as given and by base name so that "*.log" excludes logs in any directory.
func (m *Matcher) Match(path string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, g := range m.patterns {
		if g.Match(slashed) || g.Match(base) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.sources...)
}
