// Package refresh runs refresh passes over a portfolio: it fetches quotes
// off the interactive loop with bounded parallelism, merges the results into
// the portfolio's quote cache and produces sorted views.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"stockpane/internal/cache"
	"stockpane/internal/config"
	"stockpane/internal/dashboard"
	"stockpane/internal/domain"
	"stockpane/internal/quote"
)

// Members is the live symbol list of the portfolio an engine serves.
// portfolio.Store satisfies it.
type Members interface {
	Contains(symbol string) bool
	Symbols() []string
}

// Options tunes an Engine. Zero values select the configured defaults.
type Options struct {
	// Timeout bounds one refresh pass. Fetches still running at the
	// deadline are left to finish in the background and the view serves
	// the last cached quote for them.
	Timeout    time.Duration
	MaxWorkers int
	Now        func() time.Time
}

// Stats summarises one refresh pass.
type Stats struct {
	ID       string
	Fetched  int
	Failed   int
	Skipped  int // every symbol not fetched or failed when the pass returned
	Duration time.Duration
}

// Engine refreshes the quotes of one portfolio.
//
// The engine is the single writer of its cache: every merge and eviction
// happens under mu. A symbol is fetched by at most one goroutine at a time,
// across passes, so overlapping refresh requests never duplicate provider
// calls.
type Engine struct {
	name    string
	src     quote.Source
	members Members
	timeout time.Duration
	workers int
	now     func() time.Time
	log     *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	cache    *cache.Cache
	inflight map[string]struct{}
	last     time.Time
	stats    Stats
}

// NewEngine creates an Engine fetching from src for the symbols in members.
// name identifies the portfolio in logs.
func NewEngine(name string, src quote.Source, members Members, opts Options, log *slog.Logger) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultPollInterval
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = config.DefaultMaxWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		name:     name,
		src:      src,
		members:  members,
		timeout:  opts.Timeout,
		workers:  opts.MaxWorkers,
		now:      opts.Now,
		log:      log.With("component", "refresh", "portfolio", name),
		cache:    cache.New(),
		inflight: make(map[string]struct{}),
	}
}

// Refresh runs a refresh pass and returns the portfolio view sorted by sel.
// A call made while another pass is running joins that pass instead of
// starting a new one. Fetch failures never surface here: failed symbols
// keep their last known price and are marked stale.
func (e *Engine) Refresh(ctx context.Context, sel domain.Selector) dashboard.View {
	e.group.Do("pass", func() (any, error) {
		st := e.pass(ctx)
		e.mu.Lock()
		e.stats = st
		e.mu.Unlock()
		return nil, nil
	})
	return e.View(sel)
}

// View builds the current view from the cache without fetching. Only
// symbols currently in the portfolio appear; symbols never fetched show as
// pending rows.
func (e *Engine) View(sel domain.Selector) dashboard.View {
	e.mu.Lock()
	snap := e.cache.Snapshot()
	at := e.last
	e.mu.Unlock()
	return dashboard.NewView(e.members.Symbols(), snap, sel, at)
}

// Forget evicts symbol from the cache. Callers remove the symbol from the
// portfolio first; a fetch completing afterwards is then discarded at merge.
func (e *Engine) Forget(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Evict(symbol)
}

// Put records a quote fetched outside a refresh pass, such as the lookup
// made when a symbol is added. It is dropped if the symbol is not in the
// portfolio.
func (e *Engine) Put(q domain.Quote) {
	e.merge(q.Symbol, q, nil)
}

// Clear drops every cached quote. Used when the portfolio is deleted.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Clear()
}

// Quotes returns a copy of the cached quotes.
func (e *Engine) Quotes() map[string]domain.Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Snapshot()
}

// LastStats returns the statistics of the most recent completed pass.
func (e *Engine) LastStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) pass(ctx context.Context) Stats {
	id := uuid.NewString()
	start := e.now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	symbols := e.members.Symbols()
	var fetched, failed atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	done := make(chan struct{})

	// Dispatch from a separate goroutine so the deadline below still fires
	// while g.Go is waiting for a free worker.
	go func() {
		defer close(done)
		for _, sym := range symbols {
			if !e.claim(sym) {
				continue
			}
			g.Go(func() error {
				defer e.release(sym)
				if ctx.Err() != nil {
					return nil
				}
				q, err := e.src.Fetch(ctx, sym)
				switch {
				case err == nil:
					fetched.Add(1)
				case ctx.Err() != nil:
					// Cut off by the deadline; the cached quote stands.
					return nil
				default:
					failed.Add(1)
					e.log.Warn("quote fetch failed", "pass", id, "symbol", sym, "error", err)
				}
				e.merge(sym, q, err)
				return nil
			})
		}
		g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.log.Debug("refresh pass deadline reached", "pass", id, "timeout", e.timeout)
	}

	e.mu.Lock()
	e.last = e.now()
	e.mu.Unlock()

	// Workers may outlive the deadline. Anything not yet fetched or failed
	// counts as skipped.
	st := Stats{
		ID:       id,
		Fetched:  int(fetched.Load()),
		Failed:   int(failed.Load()),
		Duration: e.now().Sub(start),
	}
	st.Skipped = len(symbols) - st.Fetched - st.Failed
	e.log.Debug("refresh pass complete",
		"pass", id,
		"symbols", len(symbols),
		"fetched", st.Fetched,
		"failed", st.Failed,
		"skipped", st.Skipped,
		"duration", st.Duration,
	)
	return st
}

// claim marks symbol as being fetched. It reports false when a fetch for it
// is already running.
func (e *Engine) claim(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[symbol]; busy {
		return false
	}
	e.inflight[symbol] = struct{}{}
	return true
}

func (e *Engine) release(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, symbol)
}

// merge applies one fetch result. Results for symbols no longer in the
// portfolio are dropped. On failure the previous price fields are kept and
// only the fetch status and time change.
func (e *Engine) merge(symbol string, q domain.Quote, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.members.Contains(symbol) {
		return
	}
	if err == nil {
		e.cache.Put(symbol, q)
		return
	}
	now := e.now()
	if prev, ok := e.cache.Get(symbol); ok {
		e.cache.Put(symbol, prev.Stale(now))
		return
	}
	e.cache.Put(symbol, domain.Quote{Symbol: symbol, FetchedAt: now})
}
