package quote

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"stockpane/internal/domain"
)

func TestSnapshotQuote(t *testing.T) {
	at := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	snap := &marketdata.Snapshot{
		LatestTrade:  &marketdata.Trade{Price: 187.25},
		DailyBar:     &marketdata.Bar{Close: 187.0},
		PrevDailyBar: &marketdata.Bar{Close: 185.0},
	}

	q := snapshotQuote("AAPL", snap, domain.MarketRegular, at)
	if !q.FetchOK {
		t.Fatal("expected FetchOK")
	}
	if !q.Price.Decimal.Equal(decimal.NewFromFloat(187.25)) {
		t.Errorf("Price = %s, want 187.25", q.Price.Decimal)
	}
	if !q.Change.Valid || !q.Change.Decimal.Equal(decimal.RequireFromString("2.25")) {
		t.Errorf("Change = %v, want 2.25", q.Change)
	}
	if q.MarketState != domain.MarketRegular {
		t.Errorf("MarketState = %q, want REGULAR", q.MarketState)
	}
	if _, err := checkFields(q); err != nil {
		t.Errorf("checkFields() unexpected error: %v", err)
	}
}

func TestSnapshotQuoteFallsBackToDailyBar(t *testing.T) {
	snap := &marketdata.Snapshot{
		DailyBar:     &marketdata.Bar{Close: 50},
		PrevDailyBar: &marketdata.Bar{Close: 40},
	}
	q := snapshotQuote("XYZ", snap, domain.MarketClosed, time.Now())
	if !q.Price.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Price = %s, want daily bar close 50", q.Price.Decimal)
	}
}

func TestSnapshotQuoteMissingPrevClose(t *testing.T) {
	snap := &marketdata.Snapshot{LatestTrade: &marketdata.Trade{Price: 12.5}}
	q, err := checkFields(snapshotQuote("NEWCO", snap, domain.MarketRegular, time.Now()))
	if !errors.Is(err, domain.ErrFetchFailure) {
		t.Fatalf("checkFields() error = %v, want fetch failure", err)
	}
	if domain.FetchReasonOf(err) != domain.ReasonMissingFields {
		t.Errorf("reason = %q, want %q", domain.FetchReasonOf(err), domain.ReasonMissingFields)
	}
	if !q.Price.Valid {
		t.Error("price should still be reported")
	}
}

func TestLimitedDelegates(t *testing.T) {
	var calls atomic.Int32
	src := SourceFunc(func(_ context.Context, symbol string) (domain.Quote, error) {
		calls.Add(1)
		return domain.NewQuote(symbol, 10, 9, domain.MarketRegular, time.Now()), nil
	})

	lim := Limited(src, 6000)
	for i := 0; i < 3; i++ {
		if _, err := lim.Fetch(context.Background(), "AAPL"); err != nil {
			t.Fatalf("Fetch() unexpected error: %v", err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("underlying calls = %d, want 3", calls.Load())
	}
}

func TestLimitedHonoursContext(t *testing.T) {
	src := SourceFunc(func(_ context.Context, symbol string) (domain.Quote, error) {
		return domain.NewQuote(symbol, 10, 9, domain.MarketRegular, time.Now()), nil
	})
	lim := Limited(src, 1)

	// First call consumes the single burst token.
	if _, err := lim.Fetch(context.Background(), "AAPL"); err != nil {
		t.Fatalf("first Fetch() unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := lim.Fetch(ctx, "AAPL")
	if domain.FetchReasonOf(err) != domain.ReasonNetwork {
		t.Fatalf("Fetch() error = %v, want network fetch failure", err)
	}
}

func TestLimitedDisabled(t *testing.T) {
	src := SourceFunc(func(context.Context, string) (domain.Quote, error) { return domain.Quote{}, nil })
	if _, ok := Limited(src, 0).(SourceFunc); !ok {
		t.Error("Limited(src, 0) should return src unchanged")
	}
}

func TestRejectedSymbol(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&alpaca.APIError{StatusCode: 422}, true},
		{fmt.Errorf("wrapped: %w", &alpaca.APIError{StatusCode: 404}), true},
		{&alpaca.APIError{StatusCode: 500}, false},
		{errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		if got := rejectedSymbol(tt.err); got != tt.want {
			t.Errorf("rejectedSymbol(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
