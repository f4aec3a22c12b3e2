package app

import (
	"stockpane/internal/dashboard"
	"stockpane/internal/domain"
	"stockpane/internal/store"
)

// Command is a request consumed by Application.Dispatch.
type Command interface {
	command()
}

// AddSymbol appends Symbol to a portfolio.
type AddSymbol struct {
	Portfolio string
	Symbol    string
}

// RemoveSymbol deletes Symbol from a portfolio.
type RemoveSymbol struct {
	Portfolio string
	Symbol    string
}

// MoveSymbol moves Symbol from one portfolio to another.
type MoveSymbol struct {
	From   string
	To     string
	Symbol string
}

// ChangeSort changes a portfolio's sort. With Direction nil it behaves like
// a header click: the active column flips direction, another column starts
// ascending.
type ChangeSort struct {
	Portfolio string
	Column    domain.Column
	Direction *domain.Direction
}

// Refresh runs a refresh pass. An empty Portfolio refreshes every
// portfolio in both panes concurrently.
type Refresh struct {
	Portfolio string
}

// AddPortfolio creates a portfolio named Name at the end of a pane.
type AddPortfolio struct {
	Side store.Side
	Name string
}

// DeletePortfolio removes a portfolio and its backing file.
type DeletePortfolio struct {
	Portfolio string
}

func (AddSymbol) command()       {}
func (RemoveSymbol) command()    {}
func (MoveSymbol) command()      {}
func (ChangeSort) command()      {}
func (Refresh) command()         {}
func (AddPortfolio) command()    {}
func (DeletePortfolio) command() {}

// Result reports the outcome of a dispatched command.
type Result struct {
	// Symbol is the normalized symbol acted on, if any.
	Symbol string
	// Portfolio is the identifier of the portfolio created, if any.
	Portfolio string
	// Views holds a fresh view of every portfolio the command touched,
	// keyed by portfolio identifier.
	Views map[string]dashboard.View
}
