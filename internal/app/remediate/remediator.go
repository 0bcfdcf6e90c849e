// Package remediate implements database remediation: transactional
// deletion of malicious rows with backup-before-delete and compensating
// re-insert on partial failure, restore from time-boxed row backups,
// and whole-table backup and restore for bulk snapshots.
package remediate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openwpsec/guard/internal/metrics"
	"github.com/openwpsec/guard/pkg/domain/backup"
	"github.com/openwpsec/guard/pkg/domain/report"
	"github.com/openwpsec/guard/pkg/domain/schema"
	"github.com/openwpsec/guard/pkg/domain/shared"
	"github.com/openwpsec/guard/pkg/logger"
	"github.com/openwpsec/guard/pkg/validator"
)

// Database is the mutation surface the remediator needs. The non-tx
// DeleteRow and InsertRow are used when the store could not start a
// transaction and for compensating re-inserts after a rollback.
type Database interface {
	BeginTx(ctx context.Context) (Tx, error)
	FetchRow(ctx context.Context, table, idColumn string, rowID int64) (map[string]any, error)
	DeleteRow(ctx context.Context, table, idColumn string, rowID int64) error
	InsertRow(ctx context.Context, table string, data map[string]any) error
	TableRows(ctx context.Context, table string, fn func(map[string]any) error) error
	TruncateTable(ctx context.Context, table string) error
}

// Tx is one remediation transaction.
type Tx interface {
	DeleteRow(ctx context.Context, table, idColumn string, rowID int64) error
	InsertRow(ctx context.Context, table string, data map[string]any) error
	Commit() error
	Rollback() error
}

// BackupStore persists row-backup sets with a TTL and a rolling list of
// recent backup IDs.
type BackupStore interface {
	Save(ctx context.Context, set *backup.Set) error
	Get(ctx context.Context, id string) (*backup.Set, error)
	Delete(ctx context.Context, id string) error
	Recent(ctx context.Context) ([]string, error)
}

// Remediator deletes malicious rows with rollback safety. All staging
// state is local to one CleanIssues call; a Remediator is safe to share
// across concurrent remediations of independent issue sets.
type Remediator struct {
	db     Database
	store  BackupStore
	idents *validator.IdentifierValidator
	prefix string
	log    *logger.Logger

	now   func() time.Time
	newID func() string
}

// New creates a remediator.
func New(db Database, store BackupStore, idents *validator.IdentifierValidator, prefix string, log *logger.Logger) *Remediator {
	return &Remediator{
		db:     db,
		store:  store,
		idents: idents,
		prefix: prefix,
		log:    log,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// CleanIssues deletes every cleanable issue's row. Each row is backed
// up before its delete. The first delete failure rolls the transaction
// back and re-inserts every row deleted so far; either every targeted
// row is gone or none is.
func (r *Remediator) CleanIssues(ctx context.Context, issues []report.Issue) *report.CleanResult {
	result := &report.CleanResult{}
	defer func() { result.FinishedAt = r.now() }()

	cleanable := make([]report.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.Cleanable() {
			cleanable = append(cleanable, issue)
		}
	}
	if len(cleanable) == 0 {
		result.Success = true
		result.AddMessage("no cleanable issues")
		return result
	}

	// Best effort: without a transaction deletes still proceed, and the
	// compensating re-insert is the only rollback mechanism.
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		r.log.Warn("transaction unavailable, proceeding without atomicity", "error", err.Error())
		tx = nil
	}

	var staged []backup.Row
	deleted := map[string]int{}

	for _, issue := range cleanable {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, result, tx, staged, "operation cancelled")
		}

		if err := r.idents.ValidateTable(issue.Table); err != nil {
			result.RowsSkipped++
			result.AddMessage(fmt.Sprintf("%s[%d]: skipped, %s", issue.Table, issue.RowID, err.Error()))
			continue
		}

		idColumn, ok := schema.PrimaryKey(schema.TrimPrefix(issue.Table, r.prefix))
		if !ok {
			result.RowsSkipped++
			result.AddMessage(fmt.Sprintf("%s[%d]: skipped, no primary key mapping", issue.Table, issue.RowID))
			continue
		}

		data, err := r.db.FetchRow(ctx, issue.Table, idColumn, issue.RowID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				result.RowsSkipped++
				result.AddMessage(fmt.Sprintf("%s[%d]: already gone", issue.Table, issue.RowID))
				continue
			}
			result.RowsFailed++
			result.AddMessage(fmt.Sprintf("%s[%d]: backup fetch failed: %s", issue.Table, issue.RowID, err.Error()))
			return r.abort(ctx, result, tx, staged, "backup fetch failure")
		}

		staged = append(staged, backup.Row{
			Table:     issue.Table,
			IDColumn:  idColumn,
			RowID:     issue.RowID,
			Data:      data,
			Timestamp: r.now(),
		})

		if err := r.deleteRow(ctx, tx, issue.Table, idColumn, issue.RowID); err != nil {
			// The failed row was backed up but not deleted; only the
			// rows before it need compensation.
			staged = staged[:len(staged)-1]
			result.RowsFailed++
			result.AddMessage(fmt.Sprintf("%s[%d]: delete failed: %s", issue.Table, issue.RowID, err.Error()))
			return r.abort(ctx, result, tx, staged, "delete failure")
		}

		result.RowsDeleted++
		deleted[issue.Table]++
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			result.AddMessage("commit failed: " + err.Error())
			return r.abort(ctx, result, nil, staged, "commit failure")
		}
	}

	for table, n := range deleted {
		metrics.RowsCleanedTotal.WithLabelValues(table).Add(float64(n))
	}

	result.Success = true
	if len(staged) == 0 {
		return result
	}

	set := &backup.Set{ID: r.newID(), CreatedAt: r.now(), Rows: staged}
	if err := r.store.Save(ctx, set); err != nil {
		r.log.Error("row backup persistence failed, deletes are not restorable",
			"backup_id", set.ID, "error", err.Error())
		result.AddMessage("row backups could not be persisted: " + err.Error())
		return result
	}

	result.BackupID = set.ID
	r.log.Info("remediation complete", "backup_id", set.ID,
		"deleted", result.RowsDeleted, "skipped", result.RowsSkipped)
	return result
}

// abort rolls back the transaction and re-inserts every staged row.
// The re-insert runs even when the rollback itself succeeded, so no
// partial deletion state leaks if transactional guarantees were
// unavailable on the target store.
func (r *Remediator) abort(ctx context.Context, result *report.CleanResult, tx Tx, staged []backup.Row, reason string) *report.CleanResult {
	metrics.RemediationRollbacksTotal.Inc()
	r.log.Error("remediation aborted, rolling back", "reason", reason, "staged", len(staged))

	if tx != nil {
		if err := tx.Rollback(); err != nil {
			r.log.Error("rollback failed", "error", err.Error())
			result.AddMessage("rollback failed: " + err.Error())
		}
	}

	restored := 0
	for _, row := range staged {
		current, err := r.db.FetchRow(ctx, row.Table, row.IDColumn, row.RowID)
		if err == nil && current != nil {
			continue
		}
		if err := r.db.InsertRow(ctx, row.Table, row.Data); err != nil {
			r.log.Error("compensating re-insert failed",
				"table", row.Table, "row_id", row.RowID, "error", err.Error())
			result.AddMessage(fmt.Sprintf("%s[%d]: compensating re-insert failed: %s",
				row.Table, row.RowID, err.Error()))
			continue
		}
		restored++
	}

	result.Success = false
	result.RolledBack = true
	result.RowsDeleted = 0
	if restored > 0 {
		result.AddMessage(fmt.Sprintf("re-inserted %d rows after rollback", restored))
	}
	return result
}

func (r *Remediator) deleteRow(ctx context.Context, tx Tx, table, idColumn string, rowID int64) error {
	if tx != nil {
		return tx.DeleteRow(ctx, table, idColumn, rowID)
	}
	return r.db.DeleteRow(ctx, table, idColumn, rowID)
}

// RestoreFromBackup re-inserts every row of a stored backup set.
// Per-row failures do not abort the remaining restores. Unknown or
// expired IDs report not-found with zero writes.
func (r *Remediator) RestoreFromBackup(ctx context.Context, backupID string) *report.RestoreResult {
	result := &report.RestoreResult{}

	set, err := r.store.Get(ctx, backupID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			result.Message = fmt.Sprintf("backup %s not found or expired", backupID)
			return result
		}
		result.Message = "backup lookup failed: " + err.Error()
		return result
	}

	for _, row := range set.Rows {
		if err := r.idents.ValidateTable(row.Table); err != nil {
			result.RowsFailed++
			result.Messages = append(result.Messages,
				fmt.Sprintf("%s[%d]: %s", row.Table, row.RowID, err.Error()))
			continue
		}
		if err := r.db.InsertRow(ctx, row.Table, row.Data); err != nil {
			result.RowsFailed++
			result.Messages = append(result.Messages,
				fmt.Sprintf("%s[%d]: re-insert failed: %s", row.Table, row.RowID, err.Error()))
			continue
		}
		result.RowsRestored++
	}

	if err := r.store.Delete(ctx, backupID); err != nil {
		r.log.Error("backup entry removal failed", "backup_id", backupID, "error", err.Error())
	}

	result.Success = result.RowsFailed == 0
	result.Message = fmt.Sprintf("restored %d rows, %d failed", result.RowsRestored, result.RowsFailed)
	return result
}

// RecentBackups lists the most recent row-backup IDs, newest first.
func (r *Remediator) RecentBackups(ctx context.Context) ([]string, error) {
	return r.store.Recent(ctx)
}
