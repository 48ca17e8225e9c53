package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternMatcher_Matches(t *testing.T) {
	m := NewPatternMatcher()

	tests := []struct {
		name    string
		key     string
		pattern string
		want    bool
	}{
		{"exact match", "user:1", "user:1", true},
		{"exact mismatch", "user:1", "user:2", false},
		{"suffix wildcard", "user:123", "user:*", true},
		{"wrong namespace", "session:9", "user:*", false},
		{"prefix wildcard", "cache:user", "*:user", true},
		{"inner wildcard", "a:middle:z", "a:*:z", true},
		{"wildcard matches empty run", "ac", "a*c", true},
		{"lone wildcard", "anything", "*", true},
		{"lone wildcard empty key", "", "*", true},
		{"multiple wildcards", "tenant:42:user:7", "tenant:*:user:*", true},
		{"anchored at start", "abc", "bc", false},
		{"anchored at end", "abc", "ab", false},
		{"empty pattern empty key", "", "", true},
		{"empty pattern non-empty key", "a", "", false},
		{"dot is literal", "userX1", "user.1", false},
		{"dot matches itself", "user.1", "user.1", true},
		{"plus is literal", "a+b", "a+b", true},
		{"wildcard crosses newline", "a\nb", "a*b", true},
		{"case sensitive", "User:1", "user:*", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches(tt.key, tt.pattern))
		})
	}
}

func TestPatternMatcher_CompileMemoized(t *testing.T) {
	m := NewPatternMatcher()

	first := m.Compile("user:*")
	second := m.Compile("user:*")
	assert.Same(t, first, second)
	assert.Equal(t, 1, m.Size())

	m.Compile("session:*")
	assert.Equal(t, 2, m.Size())
}

func TestPatternMatcher_ClearCache(t *testing.T) {
	m := NewPatternMatcher()

	before := m.Compile("user:*")
	m.ClearCache()
	assert.Equal(t, 0, m.Size())

	// Fresh instance, same matching behavior
	after := m.Compile("user:*")
	assert.NotSame(t, before, after)
	assert.True(t, after.MatchString("user:1"))
}

func TestPatternMatcher_ConcurrentCompile(t *testing.T) {
	m := NewPatternMatcher()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, m.Matches("user:1", "user:*"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, m.Size())
}
