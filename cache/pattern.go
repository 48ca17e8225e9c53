package cache

import (
	"regexp"
	"strings"
	"sync"
)

// PatternMatcher compiles glob-style key patterns into regular expressions
// and memoizes the result. A pattern is a sequence of literal characters
// where `*` matches any run of characters, including an empty one. Matching
// is case-sensitive and anchored: the whole key must match, so "ab" does not
// match the key "abc". The compiled-pattern map is unbounded; each distinct
// pattern stays memoized until ClearCache.
type PatternMatcher struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

// NewPatternMatcher creates an empty matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{
		compiled: make(map[string]*regexp.Regexp),
	}
}

// Compile returns the regular expression for the given glob pattern.
// Repeated calls with the same pattern return the identical *regexp.Regexp
// until ClearCache is called.
func (m *PatternMatcher) Compile(pattern string) *regexp.Regexp {
	m.mu.RLock()
	if re, exists := m.compiled[pattern]; exists {
		m.mu.RUnlock()
		return re
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if re, exists := m.compiled[pattern]; exists {
		return re
	}

	re := compileGlob(pattern)
	m.compiled[pattern] = re
	return re
}

// Matches reports whether the key matches the glob pattern in full.
func (m *PatternMatcher) Matches(key, pattern string) bool {
	return m.Compile(pattern).MatchString(key)
}

// ClearCache discards every memoized expression. Subsequent compiles build
// fresh instances with identical matching behavior.
func (m *PatternMatcher) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiled = make(map[string]*regexp.Regexp)
}

// Size returns the number of memoized patterns.
func (m *PatternMatcher) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.compiled)
}

// compileGlob escapes every regexp metacharacter in the pattern, then
// reinstates `*` as "any run of characters". The (?s) flag lets a wildcard
// cross newlines and the anchors force a full-string match.
func compileGlob(pattern string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(pattern)
	expr := strings.ReplaceAll(escaped, `\*`, `.*`)
	return regexp.MustCompile(`(?s)^` + expr + `$`)
}
