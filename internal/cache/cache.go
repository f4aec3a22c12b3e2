// Package cache holds the per-portfolio map of last-known quotes.
package cache

import (
	"maps"

	"stockpane/internal/domain"
)

// Cache maps a symbol to its most recent quote. Put replaces an entry
// wholesale; there is no field-level merge.
//
// Cache is not safe for concurrent use. The refresh engine owning it is the
// single writer and serialises access with its own lock.
type Cache struct {
	quotes map[string]domain.Quote
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{quotes: make(map[string]domain.Quote)}
}

// Get returns the cached quote for symbol.
func (c *Cache) Get(symbol string) (domain.Quote, bool) {
	q, ok := c.quotes[symbol]
	return q, ok
}

// Put stores q under symbol, replacing any previous entry.
func (c *Cache) Put(symbol string, q domain.Quote) {
	c.quotes[symbol] = q
}

// Evict removes symbol from the cache.
func (c *Cache) Evict(symbol string) {
	delete(c.quotes, symbol)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	clear(c.quotes)
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	return len(c.quotes)
}

// Snapshot returns a copy of the cache contents.
func (c *Cache) Snapshot() map[string]domain.Quote {
	return maps.Clone(c.quotes)
}
