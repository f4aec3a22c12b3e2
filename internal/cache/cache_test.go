package cache

import (
	"testing"
	"time"

	"stockpane/internal/domain"
)

func TestPutReplacesWholeEntry(t *testing.T) {
	c := New()
	at := time.Now()
	c.Put("AAPL", domain.NewQuote("AAPL", 100, 99, domain.MarketRegular, at))

	// A bare failure record replaces the entry entirely.
	c.Put("AAPL", domain.Quote{Symbol: "AAPL", FetchedAt: at.Add(time.Second)})

	q, ok := c.Get("AAPL")
	if !ok {
		t.Fatal("expected AAPL in cache")
	}
	if q.Price.Valid {
		t.Error("Put must not merge fields from the previous entry")
	}
}

func TestGetAbsent(t *testing.T) {
	c := New()
	if _, ok := c.Get("MSFT"); ok {
		t.Error("Get on empty cache should report absent")
	}
}

func TestEvictAndClear(t *testing.T) {
	c := New()
	now := time.Now()
	for _, s := range []string{"AAPL", "MSFT", "NVDA"} {
		c.Put(s, domain.NewQuote(s, 10, 9, domain.MarketRegular, now))
	}

	c.Evict("MSFT")
	if _, ok := c.Get("MSFT"); ok {
		t.Error("MSFT should be evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	c := New()
	c.Put("AAPL", domain.NewQuote("AAPL", 10, 9, domain.MarketRegular, time.Now()))

	snap := c.Snapshot()
	delete(snap, "AAPL")

	if _, ok := c.Get("AAPL"); !ok {
		t.Error("mutating a snapshot must not affect the cache")
	}
}
