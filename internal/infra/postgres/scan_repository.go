package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/openwpsec/guard/internal/app/dbscan"
)

// ScanRepository implements dbscan.Database: schema introspection and
// batched row fetches for the content scanner.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a scan repository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// TableExists reports whether the table exists in the current schema.
func (r *ScanRepository) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return exists, nil
}

// Columns returns the table's column names.
func (r *ScanRepository) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", table, err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// TextColumns returns the table's text-typed column names.
func (r *ScanRepository) TextColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1
		   AND data_type IN ('text', 'character varying', 'character')
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("text columns %s: %w", table, err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// Indexes returns the table's index names.
func (r *ScanRepository) Indexes(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT indexname FROM pg_indexes
		 WHERE schemaname = current_schema() AND tablename = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("indexes %s: %w", table, err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// FetchTextBatch returns one page of (row id, value) pairs for a text
// column. Identifiers must already be validated by the caller; they are
// additionally quoted here.
func (r *ScanRepository) FetchTextBatch(ctx context.Context, table, idColumn, column string, limit, offset int) ([]dbscan.RowValue, error) {
	query := fmt.Sprintf(
		`SELECT %s, %s FROM %s ORDER BY %s LIMIT $1 OFFSET $2`,
		pq.QuoteIdentifier(idColumn),
		pq.QuoteIdentifier(column),
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(idColumn),
	)

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch batch %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var out []dbscan.RowValue
	for rows.Next() {
		var rv dbscan.RowValue
		var value sql.NullString
		if err := rows.Scan(&rv.RowID, &value); err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		rv.Value = value.String
		out = append(out, rv)
	}
	return out, rows.Err()
}

// FetchNames returns one page of (row id, name) pairs from a naming
// column, used for the suspicious option/user-meta checks.
func (r *ScanRepository) FetchNames(ctx context.Context, table, idColumn, nameColumn string, limit, offset int) ([]dbscan.RowValue, error) {
	return r.FetchTextBatch(ctx, table, idColumn, nameColumn, limit, offset)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan string: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
