package detect

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultPatternTimeout   = 100 * time.Millisecond
	DefaultPatternCacheSize = 256
)

// PatternCache compiles Custom rule patterns once and shares them between
// engines. Compiled patterns are immutable and safe for concurrent matching.
type PatternCache struct {
	timeout time.Duration
	cache   *lru.Cache[string, *regexp2.Regexp]
}

// NewPatternCache builds a cache holding up to size compiled patterns, each
// matching with the given timeout.
func NewPatternCache(size int, timeout time.Duration) (*PatternCache, error) {
	if size <= 0 {
		size = DefaultPatternCacheSize
	}
	if timeout <= 0 {
		timeout = DefaultPatternTimeout
	}
	c, err := lru.New[string, *regexp2.Regexp](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern cache: %w", err)
	}
	return &PatternCache{timeout: timeout, cache: c}, nil
}

// Compile returns the cached compiled form of pattern.
func (p *PatternCache) Compile(pattern string) (*regexp2.Regexp, error) {
	if re, ok := p.cache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	re.MatchTimeout = p.timeout
	p.cache.Add(pattern, re)
	return re, nil
}

// Len reports how many patterns are cached.
func (p *PatternCache) Len() int {
	return p.cache.Len()
}
