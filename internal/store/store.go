// Package store persists stockpane state: per-portfolio symbol lists, the
// portfolio registry (which portfolio files each pane shows) and Parquet
// quote snapshots.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Side names a pane in the registry.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Sides lists the panes in display order.
var Sides = []Side{SideLeft, SideRight}

// ParseSide maps "left"/"right" (any case) to a Side.
func ParseSide(s string) (Side, error) {
	switch side := Side(strings.ToLower(strings.TrimSpace(s))); side {
	case SideLeft, SideRight:
		return side, nil
	}
	return "", fmt.Errorf("unknown pane %q (want left or right)", s)
}

// Entry is one registered portfolio: its backing file identifier and the
// name shown on its tab.
type Entry struct {
	File string
	Name string
}

// Layout is the registry content: the portfolios of each pane, in tab order.
type Layout map[Side][]Entry

// Registry persists the Layout.
type Registry interface {
	// Load returns the stored layout. A registry that does not exist yet
	// yields an empty layout, not an error.
	Load(ctx context.Context) (Layout, error)

	// Save replaces the stored layout.
	Save(ctx context.Context, layout Layout) error

	// Close releases any resources held by the registry.
	Close() error
}

// Backend names accepted by OpenRegistry.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// OpenRegistry opens the registry for backend: a JSON file at jsonPath or a
// SQLite database at sqlitePath.
func OpenRegistry(backend, jsonPath, sqlitePath string) (Registry, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return NewJSONRegistry(jsonPath), nil
	case BackendSQLite:
		return NewSQLiteRegistry(sqlitePath)
	}
	return nil, fmt.Errorf("unknown registry backend %q", backend)
}
