package repository

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreSet matches repository-relative paths against a list of
// doublestar glob patterns, each matched against the whole
// slash-separated path (so "*.log" matches only at the repository
// root). This generalizes the original's
// ignored_files list, which matched the exact path string only — an
// upgrade recorded in DESIGN.md.
type IgnoreSet struct {
	patterns []string
}

// NewIgnoreSet returns an IgnoreSet over patterns.
func NewIgnoreSet(patterns []string) IgnoreSet {
	return IgnoreSet{patterns: append([]string(nil), patterns...)}
}

// Match reports whether relPath (slash-separated, relative to the
// repository root) matches any configured pattern.
func (s IgnoreSet) Match(relPath string) bool {
	clean := filepath.ToSlash(relPath)
	for _, pattern := range s.patterns {
		if ok, _ := doublestar.Match(pattern, clean); ok {
			return true
		}
	}
	return false
}

// Patterns returns the configured patterns in insertion order.
func (s IgnoreSet) Patterns() []string {
	return append([]string(nil), s.patterns...)
}
