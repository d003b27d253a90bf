// Package filter matches file paths against include/exclude glob patterns
// for the sync engine's tree walk, generalizing the teacher's exclude-only
// Scanner.isExcluded (internal/agent/scanner.go) to support both an
// include allowlist and directory pruning during filepath.WalkDir.
package filter

import (
	"os"
	"path/filepath"
	"strings"
)

// Set holds the include/exclude glob patterns for one sync or copy
// operation. An empty Includes means "everything is included unless
// excluded". Excludes always win over Includes.
type Set struct {
	Includes []string
	Excludes []string
}

// New builds a Set from include/exclude pattern lists.
func New(includes, excludes []string) *Set {
	return &Set{Includes: includes, Excludes: excludes}
}

// Match reports whether relPath should be processed. isDir lets directory
// patterns (trailing "/") match only directories, the way the teacher's
// Scanner does. Recursive patterns ("prefix/**") match files and
// directories alike: any path with a component matching prefix.
func (s *Set) Match(relPath string, isDir bool) bool {
	if s.matchesAny(s.Excludes, relPath, isDir) {
		return false
	}
	if len(s.Includes) == 0 {
		return true
	}
	// Directories are never excluded by a missing include match: the walk
	// must still descend into them to find included files below.
	if isDir {
		return true
	}
	return s.matchesAny(s.Includes, relPath, isDir)
}

// ShouldPrune reports whether a directory should be skipped entirely
// (filepath.SkipDir), i.e. it matches an exclude pattern.
func (s *Set) ShouldPrune(relPath string) bool {
	return s.matchesAny(s.Excludes, relPath, true)
}

func (s *Set) matchesAny(patterns []string, relPath string, isDir bool) bool {
	base := filepath.Base(relPath)
	parts := strings.Split(relPath, string(os.PathSeparator))

	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			if !isDir {
				continue
			}
			dirPattern := strings.TrimSuffix(pattern, "/")
			dirPattern = strings.TrimPrefix(dirPattern, "*/")
			for _, part := range parts {
				if matched, _ := filepath.Match(dirPattern, part); matched {
					return true
				}
			}
			continue
		}

		if strings.HasSuffix(pattern, "/**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			for _, part := range parts {
				if matched, _ := filepath.Match(prefix, part); matched {
					return true
				}
			}
			continue
		}

		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
