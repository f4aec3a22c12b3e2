package refresh

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockpane/internal/dashboard"
	"stockpane/internal/domain"
	"stockpane/internal/quote/quotetest"
	"stockpane/internal/util"
)

// memberSet is a minimal concurrent Members implementation.
type memberSet struct {
	mu   sync.Mutex
	syms []string
}

func newMembers(syms ...string) *memberSet { return &memberSet{syms: syms} }

func (m *memberSet) Contains(s string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.syms, s)
}

func (m *memberSet) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.syms)
}

func (m *memberSet) remove(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syms = slices.DeleteFunc(m.syms, func(x string) bool { return x == s })
}

func newEngine(src *quotetest.Fake, members Members, timeout time.Duration) *Engine {
	return NewEngine("test.txt", src, members, Options{Timeout: timeout, MaxWorkers: 4}, util.Discard())
}

func rowFor(v dashboard.View, sym string) (dashboard.ViewRow, bool) {
	for _, r := range v.Rows {
		if r.Symbol == sym {
			return r, true
		}
	}
	return dashboard.ViewRow{}, false
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRefreshBuildsSortedView(t *testing.T) {
	src := quotetest.NewFake()
	src.Set("AAPL", 102, 100)
	src.Set("MSFT", 99, 100)
	e := newEngine(src, newMembers("MSFT", "AAPL", "ZZZQ"), time.Second)

	v := e.Refresh(context.Background(), domain.DefaultSelector())

	if got, want := v.Symbols(), []string{"AAPL", "MSFT", "ZZZQ"}; !slices.Equal(got, want) {
		t.Fatalf("view = %v, want %v", got, want)
	}
	aapl, _ := rowFor(v, "AAPL")
	if aapl.ChangePercent != "+2.00%" || aapl.Class != dashboard.Rise {
		t.Errorf("AAPL row = %+v", aapl)
	}
	zzzq, _ := rowFor(v, "ZZZQ")
	if !zzzq.Stale || zzzq.Price != dashboard.NotAvailable {
		t.Errorf("ZZZQ row = %+v, want stale N/A", zzzq)
	}

	st := e.LastStats()
	if st.Fetched != 2 || st.Failed != 1 || st.ID == "" {
		t.Errorf("stats = %+v, want 2 fetched, 1 failed", st)
	}
}

func TestRefreshPreservesPriceOnFailure(t *testing.T) {
	src := quotetest.NewFake()
	src.Set("AAPL", 187.5, 180)
	e := newEngine(src, newMembers("AAPL"), time.Second)

	e.Refresh(context.Background(), domain.DefaultSelector())
	src.Fail("AAPL")
	v := e.Refresh(context.Background(), domain.DefaultSelector())

	r, ok := rowFor(v, "AAPL")
	if !ok {
		t.Fatal("AAPL missing from view")
	}
	if r.Price != "187.50" {
		t.Errorf("price = %q, want last known 187.50", r.Price)
	}
	if !r.Stale || r.ChangePercent != dashboard.NotAvailable {
		t.Errorf("row = %+v, want stale with N/A percent", r)
	}
	q := e.Quotes()["AAPL"]
	if q.FetchOK || !q.PreviousClose.Valid {
		t.Errorf("cached quote = %+v, want fetch_ok=false with prices kept", q)
	}
}

func TestRefreshEndToEnd(t *testing.T) {
	src := quotetest.NewFake()
	src.Set("AAPL", 110, 100)
	src.Set("MSFT", 101, 100)
	src.Fail("ZZZQ")
	members := newMembers("AAPL", "MSFT", "ZZZQ")
	e := newEngine(src, members, 5*time.Second)
	sel := domain.DefaultSelector()

	v := e.Refresh(context.Background(), sel)
	if got := v.Symbols(); got[len(got)-1] != "ZZZQ" {
		t.Fatalf("view = %v, want ZZZQ last", got)
	}

	src.Block("AAPL")
	result := make(chan dashboard.View, 1)
	go func() { result <- e.Refresh(context.Background(), sel) }()

	waitFor(t, "second AAPL fetch", func() bool { return src.Calls("AAPL") == 2 })
	members.remove("AAPL")
	e.Forget("AAPL")
	src.Release()

	v = <-result
	if _, ok := rowFor(v, "AAPL"); ok {
		t.Errorf("removed AAPL reappeared in view %v", v.Symbols())
	}
	if _, ok := e.Quotes()["AAPL"]; ok {
		t.Error("removed AAPL was merged back into the cache")
	}
	v = e.Refresh(context.Background(), sel)
	if got, want := v.Symbols(), []string{"MSFT", "ZZZQ"}; !slices.Equal(got, want) {
		t.Errorf("next view = %v, want %v", got, want)
	}
}

func TestConcurrentRefreshNeverOverlapsFetches(t *testing.T) {
	src := quotetest.NewFake()
	syms := []string{"AAPL", "MSFT", "NVDA", "GOOG", "AMZN", "META"}
	for i, s := range syms {
		src.Set(s, float64(100+i), 100)
		src.Block(s)
	}
	e := newEngine(src, newMembers(syms...), 5*time.Second)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Refresh(context.Background(), domain.DefaultSelector())
		}()
	}
	waitFor(t, "first fetches", func() bool { return src.TotalCalls() >= 4 })
	src.Release()
	wg.Wait()

	if got := src.MaxOverlap(); got != 1 {
		t.Errorf("max concurrent fetches per symbol = %d, want 1", got)
	}
}

func TestTimedOutFetchServesStaleAndIsNotRefetched(t *testing.T) {
	src := quotetest.NewFake()
	src.Stubborn = true
	src.Set("AAPL", 105, 100)
	src.Set("MSFT", 95, 100)
	e := newEngine(src, newMembers("AAPL", "MSFT"), 50*time.Millisecond)
	sel := domain.DefaultSelector()

	e.Refresh(context.Background(), sel)
	src.Block("AAPL")

	start := time.Now()
	v := e.Refresh(context.Background(), sel)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("refresh took %v, want it bounded by the pass timeout", elapsed)
	}
	r, _ := rowFor(v, "AAPL")
	if r.Stale || r.ChangePercent != "+5.00%" {
		t.Errorf("AAPL row = %+v, want last cached quote served", r)
	}
	// AAPL is still running when the pass returns and counts as skipped.
	if st := e.LastStats(); st.Fetched != 1 || st.Failed != 0 || st.Skipped != 1 {
		t.Errorf("stats at deadline = %+v, want 1 fetched, 1 skipped", st)
	}

	// The straggler is still running; a new pass must not start another.
	e.Refresh(context.Background(), sel)
	if got := src.Calls("AAPL"); got != 2 {
		t.Errorf("AAPL fetches = %d, want 2 (straggler not re-issued)", got)
	}
	if st := e.LastStats(); st.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", st.Skipped)
	}

	src.Release()
	waitFor(t, "straggler release", func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.inflight) == 0
	})
	if got := src.MaxOverlap(); got != 1 {
		t.Errorf("max concurrent fetches per symbol = %d, want 1", got)
	}
}

func TestViewDoesNotFetch(t *testing.T) {
	src := quotetest.NewFake()
	src.Set("AAPL", 1, 1)
	e := newEngine(src, newMembers("AAPL"), time.Second)

	v := e.View(domain.Selector{Column: domain.ColumnSymbol})
	if src.TotalCalls() != 0 {
		t.Fatal("View must not call the source")
	}
	if r, _ := rowFor(v, "AAPL"); !r.Pending {
		t.Errorf("row = %+v, want pending before first refresh", r)
	}
}

func TestClear(t *testing.T) {
	src := quotetest.NewFake()
	src.Set("AAPL", 1, 1)
	e := newEngine(src, newMembers("AAPL"), time.Second)
	e.Refresh(context.Background(), domain.DefaultSelector())
	e.Clear()
	if n := len(e.Quotes()); n != 0 {
		t.Errorf("cache size after Clear = %d, want 0", n)
	}
}

func TestSchedulerRunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(5*time.Millisecond, func(context.Context) { runs.Add(1) })

	s.Start(context.Background())
	s.Start(context.Background()) // no-op while running
	if !s.Running() {
		t.Fatal("scheduler not running after Start")
	}
	waitFor(t, "three runs", func() bool { return runs.Load() >= 3 })
	s.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Error("task ran after Stop")
	}
	if s.Running() {
		t.Error("scheduler still running after Stop")
	}
	s.Stop() // idempotent
}

func TestSchedulerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	s := NewScheduler(time.Hour, func(context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
	})
	s.Start(ctx)
	<-started
	cancel()
	waitFor(t, "loop exit", func() bool { return !s.Running() })
}
