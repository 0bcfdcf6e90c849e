package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/openwpsec/guard/internal/app/remediate"
	"github.com/openwpsec/guard/pkg/domain/shared"
)

// RemediationRepository implements remediate.Database: row fetch,
// delete, insert and transaction control for the remediator, plus the
// bulk operations used by whole-table backup/restore.
type RemediationRepository struct {
	db *DB
}

// NewRemediationRepository creates a remediation repository.
func NewRemediationRepository(db *DB) *RemediationRepository {
	return &RemediationRepository{db: db}
}

// BeginTx starts a transaction.
func (r *RemediationRepository) BeginTx(ctx context.Context) (remediate.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &remediationTx{tx: tx}, nil
}

// FetchRow returns the full row by primary key, or ErrNotFound when the
// row does not exist.
func (r *RemediationRepository) FetchRow(ctx context.Context, table, idColumn string, rowID int64) (map[string]any, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1`,
		pq.QuoteIdentifier(table), pq.QuoteIdentifier(idColumn))

	rows, err := r.db.QueryContext(ctx, query, rowID)
	if err != nil {
		return nil, fmt.Errorf("fetch row %s[%d]: %w", table, rowID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("fetch row %s[%d]: %w", table, rowID, err)
		}
		return nil, shared.ErrNotFound
	}
	return scanRowMap(rows)
}

// DeleteRow deletes one row by primary key outside a transaction. Used
// when the store could not start one.
func (r *RemediationRepository) DeleteRow(ctx context.Context, table, idColumn string, rowID int64) error {
	return deleteRow(ctx, r.db.DB, table, idColumn, rowID)
}

// InsertRow re-inserts a backed-up row.
func (r *RemediationRepository) InsertRow(ctx context.Context, table string, data map[string]any) error {
	return insertRow(ctx, r.db.DB, table, data)
}

// TableRows streams every row of a table to fn, used by whole-table
// backup dumps.
func (r *RemediationRepository) TableRows(ctx context.Context, table string, fn func(map[string]any) error) error {
	query := fmt.Sprintf(`SELECT * FROM %s`, pq.QuoteIdentifier(table))
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("dump %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanRowMap(rows)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// TruncateTable removes all rows from a table before a bulk restore.
func (r *RemediationRepository) TruncateTable(ctx context.Context, table string) error {
	query := fmt.Sprintf(`TRUNCATE TABLE %s`, pq.QuoteIdentifier(table))
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

// remediationTx wraps sql.Tx behind the remediate.Tx interface.
type remediationTx struct {
	tx *sql.Tx
}

func (t *remediationTx) DeleteRow(ctx context.Context, table, idColumn string, rowID int64) error {
	return deleteRow(ctx, t.tx, table, idColumn, rowID)
}

func (t *remediationTx) InsertRow(ctx context.Context, table string, data map[string]any) error {
	return insertRow(ctx, t.tx, table, data)
}

func (t *remediationTx) Commit() error {
	return t.tx.Commit()
}

func (t *remediationTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func deleteRow(ctx context.Context, ex execer, table, idColumn string, rowID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
		pq.QuoteIdentifier(table), pq.QuoteIdentifier(idColumn))
	if _, err := ex.ExecContext(ctx, query, rowID); err != nil {
		return fmt.Errorf("delete %s[%d]: %w", table, rowID, err)
	}
	return nil
}

func insertRow(ctx context.Context, ex execer, table string, data map[string]any) error {
	if len(data) == 0 {
		return fmt.Errorf("insert %s: empty row", table)
	}

	// Deterministic column order keeps generated SQL stable.
	cols := make([]string, 0, len(data))
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = pq.QuoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = data[col]
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		pq.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))

	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}
