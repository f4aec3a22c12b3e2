// Package app is the aggregate root of stockpane: two panes of portfolios,
// each with its symbol store, refresh engine and sort selection, driven
// through a single command dispatch entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"stockpane/internal/config"
	"stockpane/internal/dashboard"
	"stockpane/internal/domain"
	"stockpane/internal/portfolio"
	"stockpane/internal/quote"
	"stockpane/internal/refresh"
	"stockpane/internal/store"
)

// PortfolioExt is the extension of portfolio file identifiers.
const PortfolioExt = ".txt"

// Portfolio management errors.
var (
	ErrDuplicatePortfolio = errors.New("portfolio already exists")
	ErrInvalidName        = errors.New("invalid portfolio name")
)

// Portfolio is one tab: a named symbol list with its quote engine and the
// active sort selection.
type Portfolio struct {
	ID     string // file identifier, e.g. "tech.txt"
	Name   string // tab label
	Store  *portfolio.Store
	Engine *refresh.Engine

	mu  sync.Mutex
	sel domain.Selector
}

// Selector returns the active sort selection.
func (p *Portfolio) Selector() domain.Selector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sel
}

func (p *Portfolio) setSelector(sel domain.Selector) {
	p.mu.Lock()
	p.sel = sel
	p.mu.Unlock()
}

// View returns the current view without fetching.
func (p *Portfolio) View() dashboard.View {
	return p.Engine.View(p.Selector())
}

// Pane is one display region hosting portfolios as tabs.
type Pane struct {
	Side       store.Side
	portfolios []*Portfolio
}

// Portfolios returns the pane's portfolios in tab order.
func (p *Pane) Portfolios() []*Portfolio {
	return slices.Clone(p.portfolios)
}

// Application owns the two panes. All mutations go through Dispatch.
type Application struct {
	cfg      config.Config
	src      quote.Source
	registry store.Registry
	log      *slog.Logger

	mu    sync.RWMutex
	panes map[store.Side]*Pane
}

// Open builds the application from the portfolios listed in registry,
// loading each portfolio's symbol file.
func Open(ctx context.Context, cfg config.Config, src quote.Source, registry store.Registry, log *slog.Logger) (*Application, error) {
	layout, err := registry.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio registry: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		src:      src,
		registry: registry,
		log:      log.With("component", "app"),
		panes:    make(map[store.Side]*Pane, len(store.Sides)),
	}
	seen := make(map[string]bool)
	for _, side := range store.Sides {
		pane := &Pane{Side: side}
		for _, e := range layout[side] {
			if seen[e.File] {
				a.log.Warn("portfolio registered twice, ignoring", "file", e.File, "side", side)
				continue
			}
			seen[e.File] = true
			p, err := a.newPortfolio(e.File, e.Name)
			if err != nil {
				return nil, err
			}
			pane.portfolios = append(pane.portfolios, p)
		}
		a.panes[side] = pane
	}
	a.log.Info("application opened",
		"left", len(a.panes[store.SideLeft].portfolios),
		"right", len(a.panes[store.SideRight].portfolios),
	)
	return a, nil
}

func (a *Application) newPortfolio(id, name string) (*Portfolio, error) {
	if name == "" {
		name = strings.TrimSuffix(id, PortfolioExt)
	}
	st, err := portfolio.Open(id, a.cfg.Storage.PortfolioPath(id))
	if err != nil {
		return nil, fmt.Errorf("opening portfolio %s: %w", id, err)
	}
	for _, line := range st.Dropped() {
		a.log.Warn("skipping portfolio entry", "portfolio", id, "entry", line)
	}
	eng := refresh.NewEngine(id, a.src, st, refresh.Options{
		Timeout:    a.cfg.Refresh.PollInterval,
		MaxWorkers: a.cfg.Refresh.MaxWorkers,
	}, a.log)
	return &Portfolio{
		ID:     id,
		Name:   name,
		Store:  st,
		Engine: eng,
		sel:    domain.DefaultSelector(),
	}, nil
}

// Close releases the registry.
func (a *Application) Close() error {
	return a.registry.Close()
}

// Pane returns the pane on side.
func (a *Application) Pane(side store.Side) *Pane {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p := a.panes[side]
	return &Pane{Side: side, portfolios: slices.Clone(p.portfolios)}
}

// Portfolio looks up a portfolio by identifier or display name.
func (a *Application) Portfolio(ref string) (*Portfolio, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, _, ok := a.find(ref)
	if !ok {
		return nil, fmt.Errorf("%w: portfolio %q", domain.ErrNotFound, ref)
	}
	return p, nil
}

// Portfolios returns every portfolio, left pane first.
func (a *Application) Portfolios() []*Portfolio {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*Portfolio
	for _, side := range store.Sides {
		out = append(out, a.panes[side].portfolios...)
	}
	return out
}

// find resolves ref to a portfolio and its pane. Callers hold mu.
func (a *Application) find(ref string) (*Portfolio, *Pane, bool) {
	for _, side := range store.Sides {
		pane := a.panes[side]
		for _, p := range pane.portfolios {
			if p.ID == ref || p.Name == ref {
				return p, pane, true
			}
		}
	}
	return nil, nil, false
}

// Dispatch executes cmd. Validation and persistence errors are returned;
// quote fetch failures never are.
func (a *Application) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	switch c := cmd.(type) {
	case AddSymbol:
		return a.addSymbol(ctx, c)
	case RemoveSymbol:
		return a.removeSymbol(c)
	case MoveSymbol:
		return a.moveSymbol(c)
	case ChangeSort:
		return a.changeSort(c)
	case Refresh:
		return a.refresh(ctx, c)
	case AddPortfolio:
		return a.addPortfolio(ctx, c)
	case DeletePortfolio:
		return a.deletePortfolio(ctx, c)
	}
	return Result{}, fmt.Errorf("unsupported command %T", cmd)
}

func views(ps ...*Portfolio) map[string]dashboard.View {
	out := make(map[string]dashboard.View, len(ps))
	for _, p := range ps {
		out[p.ID] = p.View()
	}
	return out
}

func (a *Application) addSymbol(ctx context.Context, c AddSymbol) (Result, error) {
	p, err := a.Portfolio(c.Portfolio)
	if err != nil {
		return Result{}, err
	}
	sym, err := domain.NormalizeSymbol(c.Symbol)
	if err != nil {
		return Result{}, err
	}
	if p.Store.Contains(sym) {
		return Result{}, fmt.Errorf("%w: %s in %s", domain.ErrDuplicateSymbol, sym, p.ID)
	}

	var (
		q       domain.Quote
		fetched bool
	)
	if a.cfg.Refresh.ValidateOnAdd && a.src != nil {
		var ferr error
		q, ferr = a.src.Fetch(ctx, sym)
		switch {
		case ferr == nil:
			fetched = true
		case domain.FetchReasonOf(ferr) == domain.ReasonUnknownSymbol:
			return Result{}, fmt.Errorf("%w: %s is not known to the quote provider", domain.ErrInvalidSymbol, sym)
		default:
			a.log.Warn("could not verify symbol, adding anyway", "symbol", sym, "error", ferr)
		}
	}

	if _, err := p.Store.Add(sym); err != nil {
		return Result{}, err
	}
	if fetched {
		p.Engine.Put(q)
	}
	a.log.Info("symbol added", "portfolio", p.ID, "symbol", sym)
	return Result{Symbol: sym, Views: views(p)}, nil
}

func (a *Application) removeSymbol(c RemoveSymbol) (Result, error) {
	p, err := a.Portfolio(c.Portfolio)
	if err != nil {
		return Result{}, err
	}
	sym, err := p.Store.Remove(c.Symbol)
	if err != nil {
		return Result{}, err
	}
	p.Engine.Forget(sym)
	a.log.Info("symbol removed", "portfolio", p.ID, "symbol", sym)
	return Result{Symbol: sym, Views: views(p)}, nil
}

func (a *Application) moveSymbol(c MoveSymbol) (Result, error) {
	from, err := a.Portfolio(c.From)
	if err != nil {
		return Result{}, err
	}
	to, err := a.Portfolio(c.To)
	if err != nil {
		return Result{}, err
	}
	sym, err := from.Store.MoveTo(to.Store, c.Symbol)
	if err != nil {
		return Result{}, err
	}
	if q, ok := from.Engine.Quotes()[sym]; ok {
		to.Engine.Put(q)
	}
	from.Engine.Forget(sym)
	a.log.Info("symbol moved", "from", from.ID, "to", to.ID, "symbol", sym)
	return Result{Symbol: sym, Views: views(from, to)}, nil
}

func (a *Application) changeSort(c ChangeSort) (Result, error) {
	p, err := a.Portfolio(c.Portfolio)
	if err != nil {
		return Result{}, err
	}
	col, err := domain.ParseColumn(string(c.Column))
	if err != nil {
		return Result{}, err
	}
	sel := p.Selector().Toggle(col)
	if c.Direction != nil {
		sel = domain.Selector{Column: col, Direction: *c.Direction}
	}
	p.setSelector(sel)
	return Result{Views: views(p)}, nil
}

func (a *Application) refresh(ctx context.Context, c Refresh) (Result, error) {
	if c.Portfolio != "" {
		p, err := a.Portfolio(c.Portfolio)
		if err != nil {
			return Result{}, err
		}
		v := p.Engine.Refresh(ctx, p.Selector())
		return Result{Views: map[string]dashboard.View{p.ID: v}}, nil
	}

	all := a.Portfolios()
	out := make([]dashboard.View, len(all))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range all {
		g.Go(func() error {
			out[i] = p.Engine.Refresh(gctx, p.Selector())
			return nil
		})
	}
	g.Wait()

	res := Result{Views: make(map[string]dashboard.View, len(all))}
	for i, p := range all {
		res.Views[p.ID] = out[i]
	}
	return res, nil
}

// portfolioID derives the file identifier from a user-supplied name.
func portfolioID(name string) (string, string, error) {
	name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), PortfolioExt))
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name + PortfolioExt, name, nil
}

func (a *Application) addPortfolio(ctx context.Context, c AddPortfolio) (Result, error) {
	id, name, err := portfolioID(c.Name)
	if err != nil {
		return Result{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pane, ok := a.panes[c.Side]
	if !ok {
		return Result{}, fmt.Errorf("unknown pane %q", c.Side)
	}
	if _, _, exists := a.find(id); exists {
		return Result{}, fmt.Errorf("%w: %s", ErrDuplicatePortfolio, id)
	}
	if _, _, exists := a.find(name); exists {
		return Result{}, fmt.Errorf("%w: %s", ErrDuplicatePortfolio, name)
	}

	p, err := a.newPortfolio(id, name)
	if err != nil {
		return Result{}, err
	}
	if err := p.Store.Save(); err != nil {
		return Result{}, err
	}
	pane.portfolios = append(pane.portfolios, p)
	if err := a.registry.Save(ctx, a.layout()); err != nil {
		pane.portfolios = pane.portfolios[:len(pane.portfolios)-1]
		if rmErr := p.Store.Delete(); rmErr != nil {
			a.log.Warn("could not remove orphaned portfolio file", "file", p.Store.Path(), "error", rmErr)
		}
		return Result{}, err
	}
	a.log.Info("portfolio added", "portfolio", id, "side", c.Side)
	return Result{Portfolio: id, Views: views(p)}, nil
}

func (a *Application) deletePortfolio(ctx context.Context, c DeletePortfolio) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, pane, ok := a.find(c.Portfolio)
	if !ok {
		return Result{}, fmt.Errorf("%w: portfolio %q", domain.ErrNotFound, c.Portfolio)
	}

	// Registry before file; the pane changes only after both succeed.
	prev := a.layout()
	next := a.layout()
	next[pane.Side] = slices.DeleteFunc(next[pane.Side], func(e store.Entry) bool { return e.File == p.ID })
	if err := a.registry.Save(ctx, next); err != nil {
		return Result{}, err
	}
	if err := p.Store.Delete(); err != nil {
		if rbErr := a.registry.Save(ctx, prev); rbErr != nil {
			return Result{}, fmt.Errorf("%w (restoring registry also failed: %v)", err, rbErr)
		}
		return Result{}, err
	}
	pane.portfolios = slices.DeleteFunc(pane.portfolios, func(x *Portfolio) bool { return x == p })
	p.Engine.Clear()
	a.log.Info("portfolio deleted", "portfolio", p.ID, "side", pane.Side)
	return Result{Portfolio: p.ID}, nil
}

// layout snapshots the panes for the registry. Callers hold mu.
func (a *Application) layout() store.Layout {
	l := make(store.Layout, len(store.Sides))
	for _, side := range store.Sides {
		for _, p := range a.panes[side].portfolios {
			l[side] = append(l[side], store.Entry{File: p.ID, Name: p.Name})
		}
	}
	return l
}
