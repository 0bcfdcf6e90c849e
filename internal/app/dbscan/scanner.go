// Package dbscan implements the database content scanner: table
// integrity checks against the expected schema, batched text-column
// content scans, and suspicious option/user-meta name checks. All
// findings merge into one issue list consumed by the remediator.
package dbscan

import (
	"context"
	"strings"
	"time"

	"github.com/openwpsec/guard/internal/metrics"
	"github.com/openwpsec/guard/pkg/domain/report"
	"github.com/openwpsec/guard/pkg/domain/schema"
	"github.com/openwpsec/guard/pkg/domain/signature"
	"github.com/openwpsec/guard/pkg/logger"
	"github.com/openwpsec/guard/pkg/validator"
)

const (
	// contentBatchSize is the page size for text-column row fetches.
	contentBatchSize = 100

	// maxScanOffset caps content pagination as a runaway-loop guard.
	// Rows beyond it are not covered; very large tables need the cap
	// raised or an offline scan.
	maxScanOffset = 10000

	// matchTruncateLength bounds the matched text captured per issue.
	matchTruncateLength = 100
)

// Schema cache entry kinds.
const (
	cacheKindColumns     = "columns"
	cacheKindTextColumns = "textcolumns"
	cacheKindIndexes     = "indexes"
)

// RowValue is one (row id, text value) pair from a batched fetch.
type RowValue struct {
	RowID int64
	Value string
}

// Database is the query surface the scanner needs. Implementations must
// quote every identifier they interpolate; the scanner validates
// identifiers before every call regardless.
type Database interface {
	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string) ([]string, error)
	TextColumns(ctx context.Context, table string) ([]string, error)
	Indexes(ctx context.Context, table string) ([]string, error)
	FetchTextBatch(ctx context.Context, table, idColumn, column string, limit, offset int) ([]RowValue, error)
	FetchNames(ctx context.Context, table, idColumn, nameColumn string, limit, offset int) ([]RowValue, error)
}

// SchemaCache caches schema lookups. Every miss or error falls back to
// the database transparently.
type SchemaCache interface {
	Get(ctx context.Context, table, kind string) ([]string, error)
	Set(ctx context.Context, table, kind string, names []string) error
}

// Governor paces the batch loops.
type Governor interface {
	Wait(ctx context.Context)
}

// Scanner scans critical tables for integrity anomalies, malicious row
// content, and suspicious metadata names.
type Scanner struct {
	db           Database
	catalog      *signature.Catalog
	idents       *validator.IdentifierValidator
	cache        SchemaCache
	gov          Governor
	tables       []string
	prefix       string
	namePatterns []string
	log          *logger.Logger
}

// New creates a database scanner over the given critical tables. cache
// may be nil.
func New(db Database, catalog *signature.Catalog, idents *validator.IdentifierValidator,
	cache SchemaCache, gov Governor, tables []string, prefix string,
	namePatterns []string, log *logger.Logger) *Scanner {
	return &Scanner{
		db:           db,
		catalog:      catalog,
		idents:       idents,
		cache:        cache,
		gov:          gov,
		tables:       tables,
		prefix:       prefix,
		namePatterns: namePatterns,
		log:          log,
	}
}

// Scan runs all three checks and merges their findings.
func (s *Scanner) Scan(ctx context.Context) ([]report.Issue, error) {
	var issues []report.Issue

	integrity, err := s.CheckIntegrity(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, integrity...)

	content, err := s.ScanContent(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, content...)

	names, err := s.CheckSuspiciousNames(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, names...)

	for _, issue := range issues {
		metrics.IssuesFoundTotal.WithLabelValues(string(issue.Type)).Inc()
	}
	return issues, nil
}

// CheckIntegrity verifies each critical table exists and, where the
// expected schema covers it, diffs the live columns and indexes against
// it. Tables outside the expected map are skipped.
func (s *Scanner) CheckIntegrity(ctx context.Context) ([]report.Issue, error) {
	var issues []report.Issue

	for _, table := range s.tables {
		if err := ctx.Err(); err != nil {
			return issues, err
		}

		if err := s.idents.ValidateTable(table); err != nil {
			s.log.Error("integrity check skipped, invalid table identifier",
				"table", table, "error", err.Error())
			issues = append(issues, checkError(table, "invalid table identifier"))
			continue
		}

		exists, err := s.db.TableExists(ctx, table)
		if err != nil {
			s.log.Error("table existence check failed", "table", table, "error", err.Error())
			issues = append(issues, checkError(table, "table existence check failed: "+err.Error()))
			continue
		}
		if !exists {
			issues = append(issues, report.Issue{
				Type:       report.IssueMissingTable,
				Table:      table,
				Severity:   signature.SeverityCritical,
				Message:    "critical table is missing",
				DetectedAt: time.Now(),
			})
			continue
		}

		expected, ok := schema.Expected(schema.TrimPrefix(table, s.prefix))
		if !ok {
			continue
		}

		issues = append(issues, s.diffColumns(ctx, table, expected)...)
		issues = append(issues, s.diffIndexes(ctx, table, expected)...)
	}

	return issues, nil
}

func (s *Scanner) diffColumns(ctx context.Context, table string, expected schema.Table) []report.Issue {
	actual, err := s.cachedNames(ctx, table, cacheKindColumns, s.db.Columns)
	if err != nil {
		s.log.Error("column lookup failed", "table", table, "error", err.Error())
		return []report.Issue{checkError(table, "column lookup failed: "+err.Error())}
	}

	actualSet := lowerSet(actual)
	expectedSet := lowerSet(expected.Columns)

	var issues []report.Issue
	for _, col := range expected.Columns {
		if !actualSet[strings.ToLower(col)] {
			issues = append(issues, report.Issue{
				Type:       report.IssueMissingColumn,
				Table:      table,
				Column:     col,
				Severity:   signature.SeverityHigh,
				Message:    "expected column is missing",
				DetectedAt: time.Now(),
			})
		}
	}
	for _, col := range actual {
		if !expectedSet[strings.ToLower(col)] {
			issues = append(issues, report.Issue{
				Type:       report.IssueUnexpectedColumn,
				Table:      table,
				Column:     col,
				Severity:   signature.SeverityMedium,
				Message:    "column is not part of the expected schema",
				DetectedAt: time.Now(),
			})
		}
	}
	return issues
}

func (s *Scanner) diffIndexes(ctx context.Context, table string, expected schema.Table) []report.Issue {
	actual, err := s.cachedNames(ctx, table, cacheKindIndexes, s.db.Indexes)
	if err != nil {
		s.log.Error("index lookup failed", "table", table, "error", err.Error())
		return []report.Issue{checkError(table, "index lookup failed: "+err.Error())}
	}

	actualSet := lowerSet(actual)

	var issues []report.Issue
	for _, idx := range expected.IndexNames(table) {
		if !actualSet[strings.ToLower(idx)] {
			issues = append(issues, report.Issue{
				Type:       report.IssueMissingIndex,
				Table:      table,
				Severity:   signature.SeverityLow,
				Message:    "expected index " + idx + " is missing",
				DetectedAt: time.Now(),
			})
		}
	}
	return issues
}

// ScanContent pages through every text column of every critical table
// and matches each non-empty value against the database signature
// subset. One issue is recorded per matched row and pattern.
func (s *Scanner) ScanContent(ctx context.Context) ([]report.Issue, error) {
	sigs := s.catalog.ByKind(signature.KindDatabase)
	if len(sigs) == 0 {
		return nil, nil
	}

	var issues []report.Issue
	for _, table := range s.tables {
		if err := ctx.Err(); err != nil {
			return issues, err
		}

		if err := s.idents.ValidateTable(table); err != nil {
			s.log.Error("content scan skipped, invalid table identifier",
				"table", table, "error", err.Error())
			issues = append(issues, checkError(table, "invalid table identifier"))
			continue
		}

		idColumn, ok := schema.PrimaryKey(schema.TrimPrefix(table, s.prefix))
		if !ok {
			s.log.Debug("no primary key mapping, table skipped", "table", table)
			continue
		}

		exists, err := s.db.TableExists(ctx, table)
		if err != nil || !exists {
			continue
		}

		columns, err := s.cachedNames(ctx, table, cacheKindTextColumns, s.db.TextColumns)
		if err != nil {
			s.log.Error("text column lookup failed", "table", table, "error", err.Error())
			issues = append(issues, checkError(table, "text column lookup failed: "+err.Error()))
			continue
		}

		for _, column := range columns {
			found, err := s.scanColumn(ctx, table, idColumn, column, sigs)
			if err != nil {
				return issues, err
			}
			issues = append(issues, found...)
		}
	}
	return issues, nil
}

func (s *Scanner) scanColumn(ctx context.Context, table, idColumn, column string, sigs []signature.Signature) ([]report.Issue, error) {
	if err := s.idents.ValidateColumn(idColumn); err != nil {
		s.log.Error("content scan skipped, invalid id column", "table", table, "error", err.Error())
		return []report.Issue{checkError(table, "invalid id column identifier")}, nil
	}
	if err := s.idents.ValidateColumn(column); err != nil {
		s.log.Error("content scan skipped, invalid column", "table", table, "column", column, "error", err.Error())
		return []report.Issue{checkError(table, "invalid column identifier")}, nil
	}

	var issues []report.Issue
	for offset := 0; offset < maxScanOffset; offset += contentBatchSize {
		if err := ctx.Err(); err != nil {
			return issues, err
		}
		s.gov.Wait(ctx)

		batch, err := s.db.FetchTextBatch(ctx, table, idColumn, column, contentBatchSize, offset)
		if err != nil {
			s.log.Error("batch fetch failed", "table", table, "column", column,
				"offset", offset, "error", err.Error())
			issues = append(issues, checkError(table, "batch fetch failed: "+err.Error()))
			return issues, nil
		}
		if len(batch) == 0 {
			break
		}

		metrics.RowsScannedTotal.WithLabelValues(table).Add(float64(len(batch)))

		for _, row := range batch {
			if row.Value == "" {
				continue
			}
			for _, sig := range sigs {
				match := sig.Pattern.FindString(row.Value)
				if match == "" {
					continue
				}
				metrics.SignatureHitsTotal.WithLabelValues(string(sig.Severity), string(sig.Kind)).Inc()
				issues = append(issues, report.Issue{
					Type:           report.IssueMaliciousContent,
					Table:          table,
					Column:         column,
					RowID:          row.RowID,
					Severity:       sig.Severity,
					Message:        "malicious content: " + truncate(match, matchTruncateLength),
					MatchedPattern: sig.Name(),
					DetectedAt:     time.Now(),
				})
			}
		}

		if len(batch) < contentBatchSize {
			break
		}

		if offset+contentBatchSize >= maxScanOffset {
			s.log.Warn("content scan offset cap reached, remaining rows not covered",
				"table", table, "column", column, "cap", maxScanOffset)
		}
	}
	return issues, nil
}

// CheckSuspiciousNames flags option names and user-meta keys containing
// any of the configured wildcard substrings. Hits are high severity
// regardless of the stored value.
func (s *Scanner) CheckSuspiciousNames(ctx context.Context) ([]report.Issue, error) {
	var issues []report.Issue

	targets := []struct {
		table      string
		idColumn   string
		nameColumn string
		issueType  report.IssueType
	}{
		{s.prefix + "options", "option_id", "option_name", report.IssueSuspiciousOption},
		{s.prefix + "usermeta", "umeta_id", "meta_key", report.IssueSuspiciousUserMeta},
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return issues, err
		}

		if err := s.idents.ValidateTable(target.table); err != nil {
			s.log.Error("name check skipped, invalid table identifier",
				"table", target.table, "error", err.Error())
			continue
		}

		exists, err := s.db.TableExists(ctx, target.table)
		if err != nil || !exists {
			continue
		}

		for offset := 0; offset < maxScanOffset; offset += contentBatchSize {
			s.gov.Wait(ctx)

			batch, err := s.db.FetchNames(ctx, target.table, target.idColumn, target.nameColumn, contentBatchSize, offset)
			if err != nil {
				s.log.Error("name fetch failed", "table", target.table, "error", err.Error())
				issues = append(issues, checkError(target.table, "name fetch failed: "+err.Error()))
				break
			}
			if len(batch) == 0 {
				break
			}

			for _, row := range batch {
				pattern, hit := s.matchName(row.Value)
				if !hit {
					continue
				}
				issues = append(issues, report.Issue{
					Type:           target.issueType,
					Table:          target.table,
					Column:         target.nameColumn,
					RowID:          row.RowID,
					Severity:       signature.SeverityHigh,
					Message:        "suspicious name " + truncate(row.Value, matchTruncateLength),
					MatchedPattern: pattern,
					DetectedAt:     time.Now(),
				})
			}

			if len(batch) < contentBatchSize {
				break
			}
		}
	}
	return issues, nil
}

func (s *Scanner) matchName(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, pattern := range s.namePatterns {
		if strings.Contains(lower, pattern) {
			return pattern, true
		}
	}
	return "", false
}

// cachedNames resolves a (table, kind) name list through the schema
// cache, falling back to the database on any miss or cache error.
func (s *Scanner) cachedNames(ctx context.Context, table, kind string,
	fetch func(context.Context, string) ([]string, error)) ([]string, error) {
	if s.cache != nil {
		if names, err := s.cache.Get(ctx, table, kind); err == nil {
			return names, nil
		}
	}

	names, err := fetch(ctx, table)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, table, kind, names); err != nil {
			s.log.Debug("schema cache set failed", "table", table, "kind", kind, "error", err.Error())
		}
	}
	return names, nil
}

func checkError(table, message string) report.Issue {
	return report.Issue{
		Type:       report.IssueCheckError,
		Table:      table,
		Severity:   signature.SeverityInfo,
		Message:    message,
		DetectedAt: time.Now(),
	}
}

func lowerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
