// Package portfolio holds the ordered, duplicate-free symbol list of one
// portfolio and keeps it in step with its file on disk.
package portfolio

import (
	"fmt"
	"slices"
	"sync"

	"stockpane/internal/domain"
	"stockpane/internal/store"
)

// Store is the symbol list of one portfolio, backed by a file with one
// symbol per line. Every mutation is saved before it returns; a mutation
// whose save fails leaves the in-memory list unchanged.
type Store struct {
	id   string
	path string

	mu      sync.RWMutex
	symbols []string
	dropped []string
}

// New creates an empty Store for the portfolio id persisted at path.
// Call Load to read existing content.
func New(id, path string) *Store {
	return &Store{id: id, path: path}
}

// Open creates a Store and loads it from path.
func Open(id, path string) (*Store, error) {
	s := New(id, path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the portfolio's file identifier.
func (s *Store) ID() string { return s.id }

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Symbols returns a copy of the symbol list in order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.symbols)
}

// Len returns the number of symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}

// Contains reports whether symbol is in the list (case-insensitive).
func (s *Store) Contains(symbol string) bool {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.symbols, sym)
}

// Add appends symbol and saves. It returns the normalized symbol.
func (s *Store) Add(symbol string) (string, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.symbols, sym) {
		return "", fmt.Errorf("%w: %s in %s", domain.ErrDuplicateSymbol, sym, s.id)
	}
	next := append(slices.Clone(s.symbols), sym)
	if err := store.WriteSymbols(s.path, next); err != nil {
		return "", err
	}
	s.symbols = next
	return sym, nil
}

// Remove deletes symbol and saves. It returns the normalized symbol.
func (s *Store) Remove(symbol string) (string, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := without(s.symbols, sym)
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", domain.ErrNotFound, sym, s.id)
	}
	if err := store.WriteSymbols(s.path, next); err != nil {
		return "", err
	}
	s.symbols = next
	return sym, nil
}

// MoveTo moves symbol from s to the end of dst. Either both lists change
// and both files are saved, or neither list nor file changes. The two
// stores are locked in identifier order so concurrent moves in opposite
// directions cannot deadlock.
func (s *Store) MoveTo(dst *Store, symbol string) (string, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	if s == dst {
		return "", fmt.Errorf("moving %s: source and destination are both %s", sym, s.id)
	}

	first, second := s, dst
	if dst.id < s.id || (dst.id == s.id && dst.path < s.path) {
		first, second = dst, s
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	srcNext, ok := without(s.symbols, sym)
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", domain.ErrNotFound, sym, s.id)
	}
	if slices.Contains(dst.symbols, sym) {
		return "", fmt.Errorf("%w: %s in %s", domain.ErrDuplicateSymbol, sym, dst.id)
	}
	dstNext := append(slices.Clone(dst.symbols), sym)

	if err := store.WriteSymbols(s.path, srcNext); err != nil {
		return "", err
	}
	if err := store.WriteSymbols(dst.path, dstNext); err != nil {
		if rbErr := store.WriteSymbols(s.path, s.symbols); rbErr != nil {
			return "", fmt.Errorf("%w (restoring %s also failed: %v)", err, s.path, rbErr)
		}
		return "", err
	}
	s.symbols = srcNext
	dst.symbols = dstNext
	return sym, nil
}

// Save flushes the current list to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.WriteSymbols(s.path, s.symbols)
}

// Load replaces the in-memory list with the file content. A missing file
// is an empty list. Entries that are not valid symbols or repeat an
// earlier entry are dropped and reported by Dropped.
func (s *Store) Load() error {
	raw, err := store.ReadSymbols(s.path)
	if err != nil {
		return err
	}
	syms := make([]string, 0, len(raw))
	var dropped []string
	for _, r := range raw {
		sym, err := domain.NormalizeSymbol(r)
		if err != nil || slices.Contains(syms, sym) {
			dropped = append(dropped, r)
			continue
		}
		syms = append(syms, sym)
	}
	s.mu.Lock()
	s.symbols = syms
	s.dropped = dropped
	s.mu.Unlock()
	return nil
}

// Dropped returns the raw lines the last Load skipped. They are gone from
// the file after the next save.
func (s *Store) Dropped() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.dropped)
}

// Delete removes the backing file and empties the list.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := store.RemoveFile(s.path); err != nil {
		return err
	}
	s.symbols = nil
	return nil
}

// without returns a copy of syms lacking sym, and whether sym was present.
func without(syms []string, sym string) ([]string, bool) {
	i := slices.Index(syms, sym)
	if i < 0 {
		return nil, false
	}
	return slices.Delete(slices.Clone(syms), i, i+1), true
}
