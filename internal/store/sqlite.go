package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"stockpane/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ Registry = (*SQLiteRegistry)(nil)

const registrySchema = `
CREATE TABLE IF NOT EXISTS portfolios (
	side     TEXT    NOT NULL,
	file     TEXT    NOT NULL,
	name     TEXT    NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (side, file)
)`

// SQLiteRegistry stores the layout in a SQLite database, one row per
// portfolio. Unlike the JSON registry it keeps tab order.
type SQLiteRegistry struct {
	db   *sql.DB
	path string
}

// NewSQLiteRegistry opens (or creates) the database at dbPath and ensures
// the schema exists.
func NewSQLiteRegistry(dbPath string) (*SQLiteRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, &domain.PersistenceError{Op: "open", Path: dbPath, Err: err}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "open", Path: dbPath, Err: err}
	}
	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		return nil, &domain.PersistenceError{Op: "open", Path: dbPath, Err: fmt.Errorf("creating schema: %w", err)}
	}
	return &SQLiteRegistry{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// Load returns all registered portfolios in tab order.
func (r *SQLiteRegistry) Load(ctx context.Context) (Layout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT side, file, name FROM portfolios ORDER BY side, position`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Path: r.path, Err: err}
	}
	defer rows.Close()

	layout := Layout{}
	for rows.Next() {
		var side, file, name string
		if err := rows.Scan(&side, &file, &name); err != nil {
			return nil, &domain.PersistenceError{Op: "load", Path: r.path, Err: err}
		}
		s, err := ParseSide(side)
		if err != nil {
			continue
		}
		layout[s] = append(layout[s], Entry{File: file, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "load", Path: r.path, Err: err}
	}
	return layout, nil
}

// Save replaces every row in a single transaction.
func (r *SQLiteRegistry) Save(ctx context.Context, layout Layout) error {
	if err := r.save(ctx, layout); err != nil {
		return &domain.PersistenceError{Op: "save", Path: r.path, Err: err}
	}
	return nil
}

func (r *SQLiteRegistry) save(ctx context.Context, layout Layout) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolios`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO portfolios (side, file, name, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, side := range Sides {
		for i, e := range layout[side] {
			if _, err := stmt.ExecContext(ctx, string(side), e.File, e.Name, i); err != nil {
				return fmt.Errorf("inserting %s/%s: %w", side, e.File, err)
			}
		}
	}
	return tx.Commit()
}
