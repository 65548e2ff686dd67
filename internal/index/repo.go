package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/checksum"
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/serialize"
)

// Row represents a row in the formulas table.
type Row struct {
	ID           string
	Kind         string
	SourceFormat string
	SourceText   string
	Label        string
	Checksum     string
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string
	Kind    string
	Label   string
	Snippet string
}

// Checksum identifies the authoritative content of n.
func Checksum(n models.FormulaNode) string {
	return checksum.Fields(string(n.Kind), string(n.SourceFormat), n.SourceText)
}

// Upsert inserts or replaces a formula and its FTS entry within a transaction.
// New rows are appended to the restore order; updates keep their position.
func (db *DB) Upsert(n models.FormulaNode) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO formulas (id, kind, source_format, source_text, label, checksum, created_at, modified_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM formulas))
		ON CONFLICT(id) DO UPDATE SET
			kind          = excluded.kind,
			source_format = excluded.source_format,
			source_text   = excluded.source_text,
			label         = excluded.label,
			checksum      = excluded.checksum,
			created_at    = excluded.created_at,
			modified_at   = excluded.modified_at
	`, n.ID, string(n.Kind), string(n.SourceFormat), n.SourceText, n.AccessibilityLabel,
		Checksum(n), n.CreatedAt.UTC(), n.ModifiedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert formula: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.ID, n.SourceText, n.AccessibilityLabel); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a formula and its FTS entry. Unknown ids are ignored.
func (db *DB) Delete(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM formulas WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete formula: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a formula, or empty string if not found.
func (db *DB) GetChecksum(id string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM formulas WHERE id = ?`, id).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

const rowColumns = `id, kind, source_format, source_text, label, checksum, created_at, modified_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (Row, error) {
	var r Row
	err := s.Scan(&r.ID, &r.Kind, &r.SourceFormat, &r.SourceText, &r.Label, &r.Checksum, &r.CreatedAt, &r.ModifiedAt)
	return r, err
}

// Get returns a single formula row.
func (db *DB) Get(id string) (*Row, error) {
	r, err := scanRow(db.conn.QueryRow(`SELECT `+rowColumns+` FROM formulas WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: get %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get %s: %w", id, err)
	}
	return &r, nil
}

// List returns rows in restore order, optionally filtered by kind, together
// with the total number of matching rows.
func (db *DB) List(limit, offset int, kind string) ([]Row, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := "", []any{}
	if kind != "" {
		where = ` WHERE kind = ?`
		args = append(args, kind)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM formulas`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+rowColumns+` FROM formulas`+where+` ORDER BY seq LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// AllChecksums returns id → checksum for every stored formula.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM formulas`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// Entries returns every stored formula as an import entry, in restore order.
func (db *DB) Entries() ([]serialize.Entry, error) {
	rows, err := db.conn.Query(`SELECT ` + rowColumns + ` FROM formulas ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("index: entries: %w", err)
	}
	defer rows.Close()

	var out []serialize.Entry
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, serialize.Entry{
			ID:           r.ID,
			Kind:         r.Kind,
			SourceFormat: r.SourceFormat,
			SourceText:   r.SourceText,
			CreatedAt:    r.CreatedAt,
			ModifiedAt:   r.ModifiedAt,
		})
	}
	return out, rows.Err()
}
