// Package quote abstracts the external quote provider behind Source and
// provides the Alpaca-backed implementation.
package quote

import (
	"context"

	"stockpane/internal/domain"
)

// Source fetches the current quote for one symbol.
//
// On success the returned quote has FetchOK set and both Price and
// PreviousClose present. Every failure, including a response that lacks
// either price field, is reported as a *domain.FetchError; implementations
// never panic on provider data. Calls may block on network I/O and must not
// be made from the interactive loop.
type Source interface {
	Fetch(ctx context.Context, symbol string) (domain.Quote, error)
}

// SourceFunc adapts an ordinary function to Source.
type SourceFunc func(ctx context.Context, symbol string) (domain.Quote, error)

// Fetch calls f(ctx, symbol).
func (f SourceFunc) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	return f(ctx, symbol)
}

// checkFields turns a quote lacking either required price into a
// missing-fields FetchError, so callers see it as a soft failure.
func checkFields(q domain.Quote) (domain.Quote, error) {
	if !q.Price.Valid || !q.PreviousClose.Valid {
		return q, domain.NewFetchError(q.Symbol, domain.ReasonMissingFields, nil)
	}
	return q, nil
}
