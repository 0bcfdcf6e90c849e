// Package policy runs the file security pipeline: a fixed sequence of
// checks over a candidate file, halting on the first failure. Files
// under a protected theme path get an exception path that preserves
// site functionality while still blocking high-severity payloads.
package policy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/openwpsec/guard/internal/config"
	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/pkg/domain/report"
	"github.com/openwpsec/guard/pkg/domain/shared"
	"github.com/openwpsec/guard/pkg/entropy"
	"github.com/openwpsec/guard/pkg/logger"
)

// Pipeline stage names, reported in every ValidationResult.
const (
	StageBasics   = "basics"
	StageMetadata = "metadata"
	StagePath     = "path_security"
	StageContent  = "content_security"
	StageSystem   = "system_security"
)

// ContentScanner is the content-security delegate.
type ContentScanner interface {
	Scan(ctx context.Context, path string) (report.Verdict, error)
	ScanHighSeverity(ctx context.Context, path string) (report.Verdict, error)
}

// Policy validates candidate files through the five-stage pipeline.
type Policy struct {
	cfg      *config.PolicyConfig
	siteRoot string
	scanner  ContentScanner
	fs       localfs.FS
	log      *logger.Logger

	knownGood []*regexp.Regexp

	// now is injectable for the suspicious-hours tests.
	now func() time.Time
}

// New creates a file security policy. Known-good patterns that fail to
// compile are logged and skipped.
func New(cfg *config.PolicyConfig, siteRoot string, scanner ContentScanner, fs localfs.FS, log *logger.Logger) *Policy {
	p := &Policy{
		cfg:      cfg,
		siteRoot: siteRoot,
		scanner:  scanner,
		fs:       fs,
		log:      log,
		now:      time.Now,
	}

	for _, pat := range cfg.KnownGoodPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			log.Error("known-good pattern failed to compile, skipped",
				"pattern", pat, "error", err.Error())
			continue
		}
		p.knownGood = append(p.knownGood, re)
	}

	return p
}

// Validate runs the pipeline over the file at path. Expected rejections
// come back as an invalid ValidationResult; a non-existent file is an
// exceptional condition and comes back as an error.
func (p *Policy) Validate(ctx context.Context, path string) (report.ValidationResult, error) {
	info, err := p.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return report.ValidationResult{}, shared.NewDomainError("FILE_MISSING",
				fmt.Sprintf("file does not exist: %s", path), shared.ErrNotFound)
		}
		return report.ValidationResult{}, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return report.InvalidResult(StageBasics, "not a regular file"), nil
	}

	if res := p.checkMetadata(path, info.Size()); !res.Valid {
		return res, nil
	}

	if res := p.checkPath(path); !res.Valid {
		return res, nil
	}

	contentRes, err := p.checkContent(ctx, path)
	if err != nil {
		return report.ValidationResult{}, err
	}
	if !contentRes.Valid {
		return contentRes, nil
	}

	if res := p.checkSystem(path, info); !res.Valid {
		return res, nil
	}

	// Carry the monitored flag from the content stage through to the
	// final result.
	final := report.ValidResult(StageSystem)
	final.Monitored = contentRes.Monitored
	return final, nil
}

// checkMetadata rejects empty files not on the allow-list, suspicious
// random names, and forbidden extensions.
func (p *Policy) checkMetadata(path string, size int64) report.ValidationResult {
	base := filepath.Base(path)

	if size == 0 && !p.zeroByteAllowed(base) {
		return report.InvalidResult(StageMetadata, fmt.Sprintf("zero-byte file %q is not on the allow-list", base))
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if entropy.Suspicious(stem) {
		return report.InvalidResult(StageMetadata, fmt.Sprintf("filename %q looks randomly generated", base))
	}

	ext := strings.ToLower(filepath.Ext(base))
	for _, forbidden := range p.cfg.ForbiddenExtensions {
		if ext == forbidden {
			return report.InvalidResult(StageMetadata, fmt.Sprintf("forbidden extension %q", ext))
		}
	}

	return report.ValidResult(StageMetadata)
}

func (p *Policy) zeroByteAllowed(base string) bool {
	for _, allowed := range p.cfg.ZeroByteAllowList {
		if base == allowed {
			return true
		}
	}
	return false
}

// checkPath rejects files under restricted path prefixes.
func (p *Policy) checkPath(path string) report.ValidationResult {
	rel := p.relPath(path)
	for _, prefix := range p.cfg.RestrictedPaths {
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return report.InvalidResult(StagePath, fmt.Sprintf("path %q is under restricted prefix %q", rel, prefix))
		}
	}
	return report.ValidResult(StagePath)
}

// checkContent delegates to the content scanner and applies the
// protected-theme exception on an unsafe verdict.
func (p *Policy) checkContent(ctx context.Context, path string) (report.ValidationResult, error) {
	verdict, err := p.scanner.Scan(ctx, path)
	if err != nil {
		return report.ValidationResult{}, err
	}
	if verdict.Safe {
		return report.ValidResult(StageContent), nil
	}

	if !p.inProtectedThemePath(path) {
		res := report.InvalidResult(StageContent, verdict.Reason)
		res.QuarantineEligible = true
		return res, nil
	}

	// Theme exception path. A known-good naming convention is accepted
	// outright.
	if p.matchesKnownGood(filepath.Base(path)) {
		p.log.Debug("theme file matches known-good convention", "path", path)
		return report.ValidResult(StageContent), nil
	}

	// Preserve a copy before deciding anything destructive.
	if err := p.backupThemeFile(path); err != nil {
		p.log.Error("theme file backup failed", "path", path, "error", err.Error())
		return report.ValidationResult{}, fmt.Errorf("backup theme file %s: %w", path, err)
	}

	high, err := p.scanner.ScanHighSeverity(ctx, path)
	if err != nil {
		return report.ValidationResult{}, err
	}
	if !high.Safe {
		res := report.InvalidResult(StageContent,
			fmt.Sprintf("high-severity pattern in protected theme file: %s", high.Reason))
		res.QuarantineEligible = true
		return res, nil
	}

	// Accept but monitor: the theme exception preserves functionality.
	p.log.Info("theme file accepted under monitoring",
		"path", path, "matched", verdict.MatchedPattern, "severity", string(verdict.Severity))
	res := report.ValidResult(StageContent)
	res.Monitored = true
	return res, nil
}

// checkSystem rejects executable permission bits and suspicious-hours
// modification times. Theme-path files in the suspicious window are
// logged, not rejected.
func (p *Policy) checkSystem(path string, info os.FileInfo) report.ValidationResult {
	if info.Mode().Perm()&0o111 != 0 {
		return report.InvalidResult(StageSystem,
			fmt.Sprintf("executable permission bits set (%s)", info.Mode().Perm()))
	}

	if p.inSuspiciousHours(info.ModTime()) {
		if p.inProtectedThemePath(path) {
			p.log.Warn("theme file modified during suspicious hours",
				"path", path, "mtime", info.ModTime())
		} else {
			return report.InvalidResult(StageSystem,
				fmt.Sprintf("modified during suspicious hours (%s)", info.ModTime().Format(time.RFC3339)))
		}
	}

	return report.ValidResult(StageSystem)
}

func (p *Policy) inSuspiciousHours(mtime time.Time) bool {
	hour := mtime.Hour()
	start, end := p.cfg.SuspiciousHoursStart, p.cfg.SuspiciousHoursEnd
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (p *Policy) inProtectedThemePath(path string) bool {
	rel := p.relPath(path)
	for _, prefix := range p.cfg.ProtectedThemePaths {
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return true
		}
	}
	return false
}

func (p *Policy) matchesKnownGood(base string) bool {
	for _, re := range p.knownGood {
		if re.MatchString(base) {
			return true
		}
	}
	return false
}

// relPath normalizes path relative to the site root for prefix checks.
func (p *Policy) relPath(path string) string {
	rel, err := filepath.Rel(p.siteRoot, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// backupThemeFile writes a timestamped copy of the file into the
// policy backup directory.
func (p *Policy) backupThemeFile(path string) error {
	if err := p.fs.MkdirAll(p.cfg.BackupDir, 0o700); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	src, err := p.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s-%s%s.bak", stem, p.now().UTC().Format("20060102T150405"), filepath.Ext(base))

	dst, err := p.fs.Create(filepath.Join(p.cfg.BackupDir, name))
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy content: %w", err)
	}
	return nil
}
