package templates

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Store persists template records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceAll swaps the stored table for records in one transaction.
// Record order is preserved by List.
func (s *Store) ReplaceAll(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM templates"); err != nil {
		return fmt.Errorf("clear templates: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO templates (id, position, country_code, title, description, location, category,
			tags, sources, fixed_date, recurrence_rule, relative_anchor, offset_days, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, r := range records {
		if r.ID == "" {
			r.ID = DerivedID(r.CountryCode, r.Title)
		}
		tags, err := json.Marshal(nonNil(r.Tags))
		if err != nil {
			return err
		}
		sources, err := json.Marshal(nonNil(r.Sources))
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			r.ID, i, r.CountryCode, r.Title, r.Description, r.Location, r.Category,
			string(tags), string(sources),
			nullString(r.FixedDate), nullString(r.RecurrenceRule), nullString(r.RelativeAnchor),
			r.OffsetDays, now,
		)
		if err != nil {
			return fmt.Errorf("insert template %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns all stored records in insertion order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, country_code, title, description, location, category, tags, sources,
			fixed_date, recurrence_rule, relative_anchor, offset_days
		FROM templates ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                       Record
			tags, sources           string
			fixed, rule, anchorName sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.CountryCode, &r.Title, &r.Description, &r.Location, &r.Category,
			&tags, &sources, &fixed, &rule, &anchorName, &r.OffsetDays); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
			return nil, fmt.Errorf("decode sources of %s: %w", r.ID, err)
		}
		r.FixedDate = fixed.String
		r.RecurrenceRule = rule.String
		r.RelativeAnchor = anchorName.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM templates").Scan(&n); err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
