// Package intern deduplicates strings that recur across log event
// attributes (log levels, logger names, repeated messages) so the agent
// only ever holds one backing array per distinct value.
package intern

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = 70 * time.Second
)

// Table is a bounded, time-expiring string cache. Entries are evicted
// LRU when the table is full and expire once their TTL elapses, so a
// burst of unique values cannot pin memory. Safe for concurrent use.
type Table struct {
	cache *expirable.LRU[string, string]
}

func New(capacity int, ttl time.Duration) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Table{
		cache: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

// Intern returns the canonical copy of s, inserting s on first sight.
func (t *Table) Intern(s string) string {
	if canonical, ok := t.cache.Get(s); ok {
		return canonical
	}
	t.cache.Add(s, s)
	return s
}

// Len reports the number of live entries.
func (t *Table) Len() int {
	return t.cache.Len()
}

// Purge drops every entry. Called on agent shutdown.
func (t *Table) Purge() {
	t.cache.Purge()
}
