// Package scanrun is the engine's entry point: it walks the site tree
// through the file security policy, runs the database scanner, and
// feeds a report's findings to the remediator and quarantine manager.
// All run state is per call; the orchestrator is safe to share.
package scanrun

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/pkg/domain/report"
	"github.com/openwpsec/guard/pkg/logger"
)

const tracerName = "github.com/openwpsec/guard/internal/app/scanrun"

// FilePolicy validates one candidate file.
type FilePolicy interface {
	Validate(ctx context.Context, path string) (report.ValidationResult, error)
}

// DatabaseScanner produces the database issue list.
type DatabaseScanner interface {
	Scan(ctx context.Context) ([]report.Issue, error)
}

// RowCleaner remediates cleanable database issues.
type RowCleaner interface {
	CleanIssues(ctx context.Context, issues []report.Issue) *report.CleanResult
}

// Quarantiner isolates a confirmed-malicious file.
type Quarantiner interface {
	Quarantine(path string) error
}

// Orchestrator wires the scan and clean operations together.
type Orchestrator struct {
	policy      FilePolicy
	dbScan      DatabaseScanner
	cleaner     RowCleaner
	quarantine  Quarantiner
	fs          localfs.FS
	siteRoot    string
	parallelism int
	tracer      trace.Tracer
	log         *logger.Logger
}

// New creates an orchestrator. parallelism bounds concurrent file
// scans; 1 keeps the single-threaded cooperative model.
func New(policy FilePolicy, dbScan DatabaseScanner, cleaner RowCleaner, quarantine Quarantiner,
	fs localfs.FS, siteRoot string, parallelism int, log *logger.Logger) *Orchestrator {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Orchestrator{
		policy:      policy,
		dbScan:      dbScan,
		cleaner:     cleaner,
		quarantine:  quarantine,
		fs:          fs,
		siteRoot:    siteRoot,
		parallelism: parallelism,
		tracer:      otel.Tracer(tracerName),
		log:         log,
	}
}

// Scan walks the site tree through the policy pipeline and runs the
// database scanner, merging both into one report.
func (o *Orchestrator) Scan(ctx context.Context) (*report.ScanReport, error) {
	ctx, span := o.tracer.Start(ctx, "guard.scan")
	defer span.End()

	rep := &report.ScanReport{StartedAt: time.Now()}
	defer func() { rep.FinishedAt = time.Now() }()

	paths, err := o.collectFiles(ctx, o.siteRoot)
	if err != nil {
		return nil, fmt.Errorf("walk site root: %w", err)
	}
	span.SetAttributes(attribute.Int("guard.files", len(paths)))

	results, err := o.scanFiles(ctx, paths)
	if err != nil {
		return nil, err
	}
	rep.Files = results
	rep.FilesScanned = len(results)
	for _, f := range results {
		if !f.Result.Valid && f.Err == "" {
			rep.FilesFlagged++
		}
	}

	if o.dbScan != nil {
		issues, err := o.dbScan.Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("database scan: %w", err)
		}
		rep.Issues = issues
	}
	span.SetAttributes(
		attribute.Int("guard.files_flagged", rep.FilesFlagged),
		attribute.Int("guard.issues", len(rep.Issues)),
	)

	o.log.Info("scan complete", "files", rep.FilesScanned,
		"flagged", rep.FilesFlagged, "issues", len(rep.Issues))
	return rep, nil
}

func (o *Orchestrator) scanFiles(ctx context.Context, paths []string) ([]report.FileResult, error) {
	results := make([]report.FileResult, len(paths))

	if o.parallelism == 1 {
		for i, path := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = o.scanOne(ctx, path)
		}
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = o.scanOne(ctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) scanOne(ctx context.Context, path string) report.FileResult {
	res, err := o.policy.Validate(ctx, path)
	if err != nil {
		o.log.Error("file validation failed", "path", path, "error", err.Error())
		return report.FileResult{Path: path, Err: err.Error()}
	}
	if !res.Valid {
		o.log.Warn("file rejected", "path", path, "stage", res.Stage, "reason", res.Reason)
	}
	return report.FileResult{Path: path, Result: res}
}

// Clean remediates a prior report: cleanable database issues go to the
// row cleaner, quarantine-eligible files to the quarantine manager.
func (o *Orchestrator) Clean(ctx context.Context, rep *report.ScanReport) *report.CleanResult {
	ctx, span := o.tracer.Start(ctx, "guard.clean")
	defer span.End()

	result := o.cleaner.CleanIssues(ctx, rep.CleanableIssues())

	for _, f := range rep.FlaggedFiles() {
		if !f.Result.QuarantineEligible {
			continue
		}
		if err := o.quarantine.Quarantine(f.Path); err != nil {
			result.QuarantineFailed++
			result.AddMessage(fmt.Sprintf("%s: quarantine failed: %s", f.Path, err.Error()))
			o.log.Error("quarantine failed", "path", f.Path, "error", err.Error())
			continue
		}
		result.Quarantined++
		result.AddMessage(fmt.Sprintf("%s: quarantined", f.Path))
	}
	if result.QuarantineFailed > 0 {
		result.Success = false
	}

	span.SetAttributes(
		attribute.Int("guard.rows_deleted", result.RowsDeleted),
		attribute.Int("guard.quarantined", result.Quarantined),
	)
	return result
}

// collectFiles lists every regular file under root, depth first.
// Symlinks and special files are skipped.
func (o *Orchestrator) collectFiles(ctx context.Context, root string) ([]string, error) {
	entries, err := o.fs.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		full := filepath.Join(root, entry.Name())
		if entry.IsDir() {
			sub, err := o.collectFiles(ctx, full)
			if err != nil {
				return nil, err
			}
			paths = append(paths, sub...)
			continue
		}
		if entry.Type().IsRegular() {
			paths = append(paths, full)
		}
	}
	return paths, nil
}
