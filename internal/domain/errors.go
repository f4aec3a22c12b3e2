package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is; the typed errors below
// unwrap to the matching sentinel.
var (
	ErrDuplicateSymbol = errors.New("symbol already in portfolio")
	ErrNotFound        = errors.New("not found")
	ErrPersistence     = errors.New("persistence failure")
	ErrInvalidSymbol   = errors.New("invalid symbol")
	ErrFetchFailure    = errors.New("quote fetch failed")
	ErrInvalidColumn   = errors.New("unknown sort column")
)

// FetchReason classifies a quote fetch failure.
type FetchReason string

const (
	ReasonNetwork       FetchReason = "network"
	ReasonUnknownSymbol FetchReason = "unknown_symbol"
	ReasonMissingFields FetchReason = "missing_fields"
)

// FetchError is returned by quote sources. It satisfies
// errors.Is(err, ErrFetchFailure).
type FetchError struct {
	Symbol string
	Reason FetchReason
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %s (%s): %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetching %s: %s", e.Symbol, e.Reason)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailure}
	}
	return []error{ErrFetchFailure, e.Err}
}

// NewFetchError builds a FetchError.
func NewFetchError(symbol string, reason FetchReason, err error) *FetchError {
	return &FetchError{Symbol: symbol, Reason: reason, Err: err}
}

// FetchReasonOf returns the reason of a FetchError in err's chain, or "" if
// there is none.
func FetchReasonOf(err error) FetchReason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// PersistenceError reports an I/O failure while saving or loading. It
// satisfies errors.Is(err, ErrPersistence).
type PersistenceError struct {
	Op   string // "save", "load", "delete"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
