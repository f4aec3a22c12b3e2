// Package domain defines the core types shared across stockpane: ticker
// symbols, quotes, sort selectors and the error taxonomy.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// maxSymbolLen bounds accepted ticker length (class shares like BRK.B included).
const maxSymbolLen = 12

// NormalizeSymbol trims and uppercases s and checks that the result is a
// plausible ticker: non-empty, at most 12 characters of A-Z, 0-9 and the
// punctuation ". - ^ =" used by class shares, indices and FX pairs.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidSymbol)
	}
	if len(sym) > maxSymbolLen {
		return "", fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidSymbol, sym, maxSymbolLen)
	}
	for _, r := range sym {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', strings.ContainsRune(".-^=", r):
		default:
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidSymbol, sym, r)
		}
	}
	return sym, nil
}

// ---------------------------------------------------------------------------
// Quotes
// ---------------------------------------------------------------------------

// MarketState is the provider's indication of the trading session.
type MarketState string

const (
	MarketRegular MarketState = "REGULAR"
	MarketClosed  MarketState = "CLOSED"
	MarketUnknown MarketState = ""
)

// Quote is the most recent price data known for a symbol, possibly stale.
//
// Change and ChangePercent are valid iff Price and PreviousClose are valid
// and FetchOK is true. A quote carried over from a failed fetch keeps its
// Price and PreviousClose but loses the derived fields.
type Quote struct {
	Symbol        string
	Price         decimal.NullDecimal
	PreviousClose decimal.NullDecimal
	Change        decimal.NullDecimal
	ChangePercent decimal.NullDecimal
	MarketState   MarketState
	FetchedAt     time.Time
	FetchOK       bool
}

// Derive recomputes Change and ChangePercent from Price and PreviousClose.
// Change is rounded to 2 decimal places before the percentage is taken from
// it, so the two displayed figures always agree.
func (q Quote) Derive() Quote {
	q.Change = decimal.NullDecimal{}
	q.ChangePercent = decimal.NullDecimal{}
	if !q.FetchOK || !q.Price.Valid || !q.PreviousClose.Valid || q.PreviousClose.Decimal.IsZero() {
		return q
	}
	change := q.Price.Decimal.Sub(q.PreviousClose.Decimal).Round(2)
	pct := change.Div(q.PreviousClose.Decimal).Mul(decimal.NewFromInt(100)).Round(2)
	q.Change = decimal.NewNullDecimal(change)
	q.ChangePercent = decimal.NewNullDecimal(pct)
	return q
}

// Stale returns a copy of q recording a failed fetch at t: price fields are
// preserved, derived fields are dropped.
func (q Quote) Stale(t time.Time) Quote {
	q.FetchOK = false
	q.FetchedAt = t
	q.Change = decimal.NullDecimal{}
	q.ChangePercent = decimal.NullDecimal{}
	return q
}

// NewQuote builds a successfully fetched quote from float prices and derives
// its change fields. Non-positive prices are treated as absent.
func NewQuote(symbol string, price, prevClose float64, state MarketState, at time.Time) Quote {
	q := Quote{
		Symbol:      symbol,
		MarketState: state,
		FetchedAt:   at,
		FetchOK:     true,
	}
	if price > 0 {
		q.Price = decimal.NewNullDecimal(decimal.NewFromFloat(price))
	}
	if prevClose > 0 {
		q.PreviousClose = decimal.NewNullDecimal(decimal.NewFromFloat(prevClose))
	}
	return q.Derive()
}

// ---------------------------------------------------------------------------
// Sort selection
// ---------------------------------------------------------------------------

// Column identifies a sortable view column.
type Column string

const (
	ColumnSymbol        Column = "symbol"
	ColumnPrice         Column = "price"
	ColumnChangePercent Column = "change_percent"
)

// ParseColumn maps a column name to a Column.
func ParseColumn(s string) (Column, error) {
	switch c := Column(strings.ToLower(strings.TrimSpace(s))); c {
	case ColumnSymbol, ColumnPrice, ColumnChangePercent:
		return c, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidColumn, s)
}

// Direction is the sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// Arrow returns the header marker for the direction.
func (d Direction) Arrow() string {
	if d == Descending {
		return "↓"
	}
	return "↑"
}

// Selector is the active (column, direction) pair of a portfolio view.
type Selector struct {
	Column    Column
	Direction Direction
}

// DefaultSelector sorts by percent change, biggest movers first.
func DefaultSelector() Selector {
	return Selector{Column: ColumnChangePercent, Direction: Descending}
}

// Toggle returns the selector after a header click on col: the same column
// flips direction, a new column starts ascending.
func (s Selector) Toggle(col Column) Selector {
	if s.Column == col {
		if s.Direction == Ascending {
			return Selector{Column: col, Direction: Descending}
		}
		return Selector{Column: col, Direction: Ascending}
	}
	return Selector{Column: col, Direction: Ascending}
}
