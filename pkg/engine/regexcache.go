package engine

import (
	"regexp"
	"sync"
)

// RegexCache compiles and memoizes rule patterns. Compilation happens once
// per distinct (pattern, case sensitivity) pair; failed compilations are
// memoized too, so a broken pattern costs one compile attempt total and its
// rule reports the same diagnostic on every evaluation.
//
// The cache is unbounded: the pattern population is bounded by the loaded
// rule set, which is bounded by policy.
type RegexCache struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
	failed   map[string]error
}

// NewRegexCache creates an empty regex cache.
func NewRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*regexp.Regexp),
		failed:   make(map[string]error),
	}
}

// cacheKey distinguishes the same pattern compiled with different flags.
func cacheKey(pattern string, nocase bool) string {
	if nocase {
		return "gi\x00" + pattern
	}
	return "g\x00" + pattern
}

// Get returns the compiled regex for the pattern, compiling on first use.
// Case-insensitive patterns are compiled with an (?i) prefix.
func (c *RegexCache) Get(pattern string, nocase bool) (*regexp.Regexp, error) {
	key := cacheKey(pattern, nocase)

	c.mu.RLock()
	re, ok := c.compiled[key]
	err, failed := c.failed[key]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}
	if failed {
		return nil, err
	}

	src := pattern
	if nocase {
		src = "(?i)" + pattern
	}
	re, compileErr := regexp.Compile(src)

	c.mu.Lock()
	defer c.mu.Unlock()
	if compileErr != nil {
		c.failed[key] = compileErr
		return nil, compileErr
	}
	// A concurrent caller may have compiled the same key; either value is
	// equivalent, keep the first one published.
	if existing, ok := c.compiled[key]; ok {
		return existing, nil
	}
	c.compiled[key] = re
	return re, nil
}

// Size returns the number of successfully compiled patterns.
func (c *RegexCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiled)
}

// Clear empties the cache, including memoized failures.
func (c *RegexCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiled = make(map[string]*regexp.Regexp)
	c.failed = make(map[string]error)
}
