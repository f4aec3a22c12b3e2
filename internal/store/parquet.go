package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"stockpane/internal/domain"
)

// ParquetStore keeps quote snapshots as Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// QuoteRecord is the Parquet schema for one quote snapshot row. Absent
// prices are stored as nulls.
type QuoteRecord struct {
	Symbol        string   `parquet:"symbol"`
	FetchedAt     int64    `parquet:"fetched_at,timestamp(millisecond)"` // Unix ms
	Price         *float64 `parquet:"price,optional"`
	PreviousClose *float64 `parquet:"previous_close,optional"`
	Change        *float64 `parquet:"change,optional"`
	ChangePercent *float64 `parquet:"change_percent,optional"`
	MarketState   string   `parquet:"market_state"`
	FetchOK       bool     `parquet:"fetch_ok"`
}

// NewQuoteRecord converts a quote to its on-disk form.
func NewQuoteRecord(q domain.Quote) QuoteRecord {
	return QuoteRecord{
		Symbol:        q.Symbol,
		FetchedAt:     q.FetchedAt.UnixMilli(),
		Price:         floatPtr(q.Price),
		PreviousClose: floatPtr(q.PreviousClose),
		Change:        floatPtr(q.Change),
		ChangePercent: floatPtr(q.ChangePercent),
		MarketState:   string(q.MarketState),
		FetchOK:       q.FetchOK,
	}
}

// Quote converts the record back to a domain quote.
func (r QuoteRecord) Quote() domain.Quote {
	return domain.Quote{
		Symbol:        r.Symbol,
		Price:         nullDecimal(r.Price),
		PreviousClose: nullDecimal(r.PreviousClose),
		Change:        nullDecimal(r.Change),
		ChangePercent: nullDecimal(r.ChangePercent),
		MarketState:   domain.MarketState(r.MarketState),
		FetchedAt:     time.UnixMilli(r.FetchedAt),
		FetchOK:       r.FetchOK,
	}
}

// WriteQuotes appends quotes to the snapshot file of portfolio for the day
// of at. Rows already stored for the same (symbol, fetched_at) are replaced.
//
//	<DataDir>/snapshots/<portfolio>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteQuotes(_ context.Context, portfolio string, at time.Time, quotes []domain.Quote) (string, error) {
	path := s.snapshotPath(portfolio, at)
	if len(quotes) == 0 {
		return path, nil
	}
	records := make([]QuoteRecord, 0, len(quotes))
	for _, q := range quotes {
		records = append(records, NewQuoteRecord(q))
	}

	var existing []QuoteRecord
	if _, err := os.Stat(path); err == nil {
		existing, err = readParquetFile[QuoteRecord](path)
		if err != nil {
			return "", &domain.PersistenceError{Op: "load", Path: path, Err: err}
		}
	} else if !os.IsNotExist(err) {
		return "", &domain.PersistenceError{Op: "load", Path: path, Err: err}
	}
	merged := mergeQuoteRecords(existing, records)

	if err := writeParquetFile(path, merged); err != nil {
		return "", &domain.PersistenceError{Op: "save", Path: path, Err: err}
	}
	return path, nil
}

// ReadQuotes reads the snapshot of portfolio for the day of date, ordered by
// fetch time. A missing file yields no quotes.
func (s *ParquetStore) ReadQuotes(_ context.Context, portfolio string, date time.Time) ([]domain.Quote, error) {
	path := s.snapshotPath(portfolio, date)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := readParquetFile[QuoteRecord](path)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Path: path, Err: err}
	}
	quotes := make([]domain.Quote, 0, len(records))
	for _, r := range records {
		quotes = append(quotes, r.Quote())
	}
	return quotes, nil
}

// snapshotPath returns the filesystem path for a snapshot file.
func (s *ParquetStore) snapshotPath(portfolio string, t time.Time) string {
	name := strings.TrimSuffix(portfolio, filepath.Ext(portfolio))
	return filepath.Join(s.DataDir, "snapshots", name, t.Format("2006-01-02")+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

// mergeQuoteRecords deduplicates records by (symbol, fetched_at), preferring
// incoming records. Results are sorted by fetch time, then symbol.
func mergeQuoteRecords(existing, incoming []QuoteRecord) []QuoteRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]QuoteRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.FetchedAt}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.FetchedAt}] = r
	}

	merged := make([]QuoteRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].FetchedAt != merged[j].FetchedAt {
			return merged[i].FetchedAt < merged[j].FetchedAt
		}
		return merged[i].Symbol < merged[j].Symbol
	})
	return merged
}

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

func nullDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*f))
}
