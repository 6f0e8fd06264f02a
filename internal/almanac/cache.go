package almanac

import (
	"strings"
	"sync"

	"almanac/internal/model"
)

// YearExpander is the expansion operation a Cache reads through to.
type YearExpander interface {
	ExpandEventsForYear(countryCode string, year int) Result
}

type cacheKey struct {
	country string
	year    int
}

type cacheEntry struct {
	once   sync.Once
	result Result
}

// Cache memoizes expansions by (country, year). Each key is computed at
// most once, even under concurrent Get calls for the same key.
type Cache struct {
	exp YearExpander

	mu      sync.RWMutex
	entries map[cacheKey]*cacheEntry
}

// NewCache constructs a read-through cache in front of exp.
func NewCache(exp YearExpander) *Cache {
	return &Cache{
		exp:     exp,
		entries: make(map[cacheKey]*cacheEntry),
	}
}

// Get returns the expansion for (countryCode, year). The returned Result
// is a copy; mutating it does not affect the cache.
func (c *Cache) Get(countryCode string, year int) Result {
	key := cacheKey{country: strings.ToUpper(countryCode), year: year}

	c.mu.RLock()
	e := c.entries[key]
	c.mu.RUnlock()

	if e == nil {
		c.mu.Lock()
		if e = c.entries[key]; e == nil {
			e = &cacheEntry{}
			c.entries[key] = e
		}
		c.mu.Unlock()
	}

	e.once.Do(func() {
		e.result = c.exp.ExpandEventsForYear(key.country, key.year)
	})
	return e.result.clone()
}

// Len reports how many keys have been requested.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (r Result) clone() Result {
	out := Result{
		Occurrences: make([]model.Occurrence, len(r.Occurrences)),
	}
	for i, o := range r.Occurrences {
		o.Tags = cloneStrings(o.Tags)
		o.Sources = cloneStrings(o.Sources)
		out.Occurrences[i] = o
	}
	if len(r.Diagnostics) > 0 {
		out.Diagnostics = append([]Diagnostic(nil), r.Diagnostics...)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}
