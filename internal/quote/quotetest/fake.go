// Package quotetest provides a scriptable quote.Source for tests.
package quotetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"stockpane/internal/domain"
)

// Price is a scripted successful response.
type Price struct {
	Price     float64
	PrevClose float64
}

// Fake is a quote.Source returning scripted prices. Symbols without a script
// fail with an unknown-symbol FetchError; symbols in Failing fail with a
// network FetchError. Fetches for symbols listed in Block wait until the
// gate is released (or ctx ends).
type Fake struct {
	mu      sync.Mutex
	prices  map[string]Price
	failing map[string]bool
	block   map[string]bool
	gate    chan struct{}
	calls   map[string]int

	inflight   map[string]int
	maxOverlap atomic.Int32 // highest concurrent fetch count seen for a single symbol
	total      atomic.Int32
	Now        func() time.Time

	// Stubborn makes blocked fetches ignore ctx and wait for Release only,
	// like a provider client without cancellation support.
	Stubborn bool
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		prices:   make(map[string]Price),
		failing:  make(map[string]bool),
		block:    make(map[string]bool),
		gate:     make(chan struct{}),
		calls:    make(map[string]int),
		inflight: make(map[string]int),
		Now:      time.Now,
	}
}

// Set scripts a successful quote for symbol and clears any failure.
func (f *Fake) Set(symbol string, price, prevClose float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = Price{Price: price, PrevClose: prevClose}
	delete(f.failing, symbol)
}

// Fail makes every later fetch of symbol fail with a network error.
func (f *Fake) Fail(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[symbol] = true
}

// Block makes fetches of symbol wait until Release is called.
func (f *Fake) Block(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block[symbol] = true
}

// Release unblocks all waiting and future blocked fetches.
func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.gate:
	default:
		close(f.gate)
	}
}

// Calls returns how many fetches of symbol have started.
func (f *Fake) Calls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

// TotalCalls returns the number of fetches started for any symbol.
func (f *Fake) TotalCalls() int { return int(f.total.Load()) }

// MaxOverlap returns the highest number of simultaneous fetches observed
// for any single symbol.
func (f *Fake) MaxOverlap() int { return int(f.maxOverlap.Load()) }

// Fetch implements quote.Source.
func (f *Fake) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	f.mu.Lock()
	f.calls[symbol]++
	f.inflight[symbol]++
	if n := int32(f.inflight[symbol]); n > f.maxOverlap.Load() {
		f.maxOverlap.Store(n)
	}
	blocked := f.block[symbol]
	gate := f.gate
	f.mu.Unlock()
	f.total.Add(1)

	defer func() {
		f.mu.Lock()
		f.inflight[symbol]--
		f.mu.Unlock()
	}()

	if blocked && f.Stubborn {
		<-gate
	} else if blocked {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Quote{Symbol: symbol}, domain.NewFetchError(symbol, domain.ReasonNetwork, ctx.Err())
		}
	}

	f.mu.Lock()
	p, ok := f.prices[symbol]
	failing := f.failing[symbol]
	f.mu.Unlock()

	switch {
	case failing:
		return domain.Quote{Symbol: symbol}, domain.NewFetchError(symbol, domain.ReasonNetwork, nil)
	case !ok:
		return domain.Quote{Symbol: symbol}, domain.NewFetchError(symbol, domain.ReasonUnknownSymbol, nil)
	}
	return domain.NewQuote(symbol, p.Price, p.PrevClose, domain.MarketRegular, f.Now()), nil
}
