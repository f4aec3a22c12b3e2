// Package dashboard turns cached quotes into the sorted, classified rows a
// render collaborator draws.
package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"stockpane/internal/domain"
)

// ViewRow is one rendered line of a portfolio view. Rows are rebuilt on
// every refresh or sort change and never mutated afterwards.
type ViewRow struct {
	Symbol        string
	Price         string
	ChangePercent string
	Change        decimal.NullDecimal
	Class         Class
	MarketState   domain.MarketState
	FetchedAt     time.Time
	Stale         bool // last fetch failed; price fields are from an earlier fetch
	Pending       bool // no quote has been fetched yet
}

// View is an ordered snapshot of a portfolio.
type View struct {
	Rows      []ViewRow
	Selector  domain.Selector
	UpdatedAt time.Time
}

// NewRow builds the row for symbol from its cached quote, if any.
func NewRow(symbol string, q domain.Quote, ok bool) ViewRow {
	if !ok {
		return ViewRow{
			Symbol:        symbol,
			Price:         NotAvailable,
			ChangePercent: NotAvailable,
			Pending:       true,
		}
	}
	row := ViewRow{
		Symbol:        symbol,
		Price:         FormatPrice(q.Price),
		ChangePercent: FormatPercent(q.ChangePercent),
		Change:        q.Change,
		MarketState:   q.MarketState,
		FetchedAt:     q.FetchedAt,
		Stale:         !q.FetchOK,
	}
	return row
}

// NewView builds a view over symbols (in portfolio order) using quotes,
// sorts it by sel and tags each row with its class. Symbols without a quote
// produce N/A rows; quotes for symbols not listed are ignored.
func NewView(symbols []string, quotes map[string]domain.Quote, sel domain.Selector, at time.Time) View {
	rows := make([]ViewRow, 0, len(symbols))
	for _, sym := range symbols {
		q, ok := quotes[sym]
		rows = append(rows, NewRow(sym, q, ok))
	}
	rows = Sort(rows, sel)
	for i := range rows {
		rows[i].Class = ClassifyRow(rows[i].ChangePercent, rows[i].Change)
	}
	return View{Rows: rows, Selector: sel, UpdatedAt: at}
}

// Symbols returns the row symbols in view order.
func (v View) Symbols() []string {
	out := make([]string, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.Symbol
	}
	return out
}

// Page is one page of a view.
type Page struct {
	Rows   []ViewRow
	Number int // zero-based
	Count  int // total pages, at least 1
}

// Paginate returns page number (zero-based, clamped into range) of rows
// split into pages of size. A non-positive size yields a single page.
func Paginate(rows []ViewRow, number, size int) Page {
	if size <= 0 || len(rows) <= size {
		return Page{Rows: rows, Number: 0, Count: 1}
	}
	count := (len(rows) + size - 1) / size
	number = min(max(number, 0), count-1)
	start := number * size
	end := min(start+size, len(rows))
	return Page{Rows: rows[start:end], Number: number, Count: count}
}
