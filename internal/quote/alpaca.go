package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockpane/internal/domain"
	"stockpane/internal/util"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// clockTTL is how long a market clock reading is reused across fetches.
const clockTTL = time.Minute

// AlpacaOptions configures an AlpacaSource.
type AlpacaOptions struct {
	APIKey     string
	APISecret  string
	BaseURL    string // trading API, used for the market clock
	DataURL    string // market-data API
	Feed       string // "iex" or "sip"
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// AlpacaSource implements Source using Alpaca market-data snapshots: the
// latest trade is the current price and the previous daily bar's close is
// the previous close.
type AlpacaSource struct {
	data       *marketdata.Client
	trading    *alpaca.Client
	feed       string
	retries    int
	retryDelay time.Duration
	now        func() time.Time
	log        *slog.Logger

	clockMu   sync.Mutex
	clockAt   time.Time
	lastState domain.MarketState
}

// NewAlpacaSource creates an AlpacaSource with the given credentials.
func NewAlpacaSource(opts AlpacaOptions, log *slog.Logger) *AlpacaSource {
	httpClient := &http.Client{Timeout: opts.Timeout}

	dataOpts := marketdata.ClientOpts{
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		HTTPClient: httpClient,
	}
	if opts.DataURL != "" {
		dataOpts.BaseURL = opts.DataURL
	}
	tradingOpts := alpaca.ClientOpts{
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		HTTPClient: httpClient,
	}
	if opts.BaseURL != "" {
		tradingOpts.BaseURL = opts.BaseURL
	}

	return &AlpacaSource{
		data:       marketdata.NewClient(dataOpts),
		trading:    alpaca.NewClient(tradingOpts),
		feed:       opts.Feed,
		retries:    max(opts.Retries, 1),
		retryDelay: opts.RetryDelay,
		now:        time.Now,
		log:        log.With("source", "alpaca"),
	}
}

// errUnknownSymbol marks a response with no snapshot for the symbol.
var errUnknownSymbol = errors.New("no snapshot for symbol")

// rejectedSymbol reports whether err is the API refusing the symbol itself
// rather than a transport or server failure.
func rejectedSymbol(err error) bool {
	var apiErr *alpaca.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusUnprocessableEntity
}

// Fetch returns the current quote for symbol.
func (s *AlpacaSource) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	var snap *marketdata.Snapshot
	err := util.Retry(ctx, s.retries, s.retryDelay, func(err error) bool {
		return !errors.Is(err, errUnknownSymbol)
	}, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sn, err := s.data.GetSnapshot(symbol, marketdata.GetSnapshotRequest{Feed: s.feed})
		if err != nil {
			if rejectedSymbol(err) {
				return fmt.Errorf("%w: %v", errUnknownSymbol, err)
			}
			return fmt.Errorf("GetSnapshot: %w", err)
		}
		if sn == nil {
			return errUnknownSymbol
		}
		snap = sn
		return nil
	})
	if errors.Is(err, errUnknownSymbol) {
		return domain.Quote{Symbol: symbol}, domain.NewFetchError(symbol, domain.ReasonUnknownSymbol, err)
	}
	if err != nil {
		return domain.Quote{Symbol: symbol}, domain.NewFetchError(symbol, domain.ReasonNetwork, err)
	}

	return checkFields(snapshotQuote(symbol, snap, s.marketState(), s.now()))
}

// snapshotQuote converts an Alpaca snapshot into a quote. Absent trade or
// bar data leaves the corresponding price absent.
func snapshotQuote(symbol string, snap *marketdata.Snapshot, state domain.MarketState, at time.Time) domain.Quote {
	var price, prevClose float64
	switch {
	case snap.LatestTrade != nil:
		price = snap.LatestTrade.Price
	case snap.DailyBar != nil:
		price = snap.DailyBar.Close
	}
	if snap.PrevDailyBar != nil {
		prevClose = snap.PrevDailyBar.Close
	}
	return domain.NewQuote(symbol, price, prevClose, state, at)
}

// marketState returns REGULAR or CLOSED from the Alpaca market clock,
// refreshing it at most once per clockTTL. A failed clock read degrades to
// an unknown state; it never fails the quote.
func (s *AlpacaSource) marketState() domain.MarketState {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	now := s.now()
	if !s.clockAt.IsZero() && now.Sub(s.clockAt) < clockTTL {
		return s.lastState
	}

	clock, err := s.trading.GetClock()
	if err != nil {
		s.log.Debug("reading market clock", "error", err)
		return domain.MarketUnknown
	}
	s.clockAt = now
	s.lastState = domain.MarketClosed
	if clock.IsOpen {
		s.lastState = domain.MarketRegular
	}
	return s.lastState
}
