package scanrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/pkg/domain/report"
	"github.com/openwpsec/guard/pkg/domain/signature"
	"github.com/openwpsec/guard/pkg/logger"
)

type fakePolicy struct {
	invalid map[string]report.ValidationResult
	errs    map[string]error
}

func (p *fakePolicy) Validate(_ context.Context, path string) (report.ValidationResult, error) {
	base := filepath.Base(path)
	if err, ok := p.errs[base]; ok {
		return report.ValidationResult{}, err
	}
	if res, ok := p.invalid[base]; ok {
		return res, nil
	}
	return report.ValidResult("system_security"), nil
}

type fakeDBScanner struct {
	issues []report.Issue
	err    error
}

func (s *fakeDBScanner) Scan(context.Context) ([]report.Issue, error) {
	return s.issues, s.err
}

type fakeCleaner struct {
	got    []report.Issue
	result *report.CleanResult
}

func (c *fakeCleaner) CleanIssues(_ context.Context, issues []report.Issue) *report.CleanResult {
	c.got = issues
	return c.result
}

type fakeQuarantine struct {
	paths   []string
	failFor string
}

func (q *fakeQuarantine) Quarantine(path string) error {
	if q.failFor != "" && strings.HasSuffix(path, q.failFor) {
		return errors.New("all strategies failed")
	}
	q.paths = append(q.paths, path)
	return nil
}

func seedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{
		"index.php",
		"wp-content/plugins/greeter/greeter.php",
		"wp-content/uploads/shell.php",
	} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("<?php ?>"), 0o600))
	}
	return root
}

func rejected() report.ValidationResult {
	res := report.InvalidResult("content_security", "eval of base64 payload")
	res.QuarantineEligible = true
	return res
}

func TestScan_MergesFilesAndIssues(t *testing.T) {
	root := seedTree(t)
	policy := &fakePolicy{invalid: map[string]report.ValidationResult{"shell.php": rejected()}}
	dbIssues := []report.Issue{{
		Type: report.IssueMaliciousContent, Table: "wp_options", RowID: 7,
		Severity: signature.SeverityCritical, Message: "malicious content",
	}}

	o := New(policy, &fakeDBScanner{issues: dbIssues}, nil, nil,
		localfs.NewOS(), root, 1, logger.NewNop())

	rep, err := o.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, rep.FilesScanned)
	assert.Equal(t, 1, rep.FilesFlagged)
	assert.Len(t, rep.Issues, 1)
	assert.False(t, rep.StartedAt.IsZero())
	assert.False(t, rep.FinishedAt.Before(rep.StartedAt))

	flagged := rep.FlaggedFiles()
	require.Len(t, flagged, 1)
	assert.True(t, strings.HasSuffix(flagged[0].Path, "shell.php"))
}

func TestScan_PolicyErrorIsRecordedNotFlagged(t *testing.T) {
	root := seedTree(t)
	policy := &fakePolicy{errs: map[string]error{"greeter.php": errors.New("file vanished mid-scan")}}

	o := New(policy, &fakeDBScanner{}, nil, nil, localfs.NewOS(), root, 1, logger.NewNop())

	rep, err := o.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, rep.FilesScanned)
	assert.Zero(t, rep.FilesFlagged)
	assert.Empty(t, rep.FlaggedFiles())

	var errored int
	for _, f := range rep.Files {
		if f.Err != "" {
			errored++
		}
	}
	assert.Equal(t, 1, errored)
}

func TestScan_ParallelCoversEveryFile(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		name := filepath.Join(root, "dir", string(rune('a'+i))+".php")
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte("<?php ?>"), 0o600))
	}

	o := New(&fakePolicy{}, &fakeDBScanner{}, nil, nil, localfs.NewOS(), root, 4, logger.NewNop())

	rep, err := o.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, rep.FilesScanned)
	assert.Len(t, rep.Files, 20)
	for _, f := range rep.Files {
		assert.NotEmpty(t, f.Path)
	}
}

func TestScan_CancelledContext(t *testing.T) {
	root := seedTree(t)
	o := New(&fakePolicy{}, &fakeDBScanner{}, nil, nil, localfs.NewOS(), root, 1, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClean_QuarantinesEligibleFiles(t *testing.T) {
	cleaner := &fakeCleaner{result: &report.CleanResult{Success: true, RowsDeleted: 2}}
	quarantine := &fakeQuarantine{}

	rep := &report.ScanReport{
		Files: []report.FileResult{
			{Path: "/site/wp-content/uploads/shell.php", Result: rejected()},
			{Path: "/site/wp-content/old.php", Result: report.InvalidResult("metadata", "forbidden extension")},
			{Path: "/site/index.php", Result: report.ValidResult("system_security")},
		},
		FilesFlagged: 2,
		Issues: []report.Issue{{
			Type: report.IssueMaliciousContent, Table: "wp_options", RowID: 7,
			Severity: signature.SeverityCritical,
		}},
	}

	o := New(&fakePolicy{}, nil, cleaner, quarantine, localfs.NewOS(), "/site", 1, logger.NewNop())
	result := o.Clean(context.Background(), rep)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RowsDeleted)
	assert.Len(t, cleaner.got, 1)
	assert.Equal(t, 1, result.Quarantined)
	assert.Zero(t, result.QuarantineFailed)
	assert.Equal(t, []string{"/site/wp-content/uploads/shell.php"}, quarantine.paths)
}

func TestClean_QuarantineFailureFailsTheRun(t *testing.T) {
	cleaner := &fakeCleaner{result: &report.CleanResult{Success: true}}
	quarantine := &fakeQuarantine{failFor: "shell.php"}

	rep := &report.ScanReport{
		Files: []report.FileResult{
			{Path: "/site/wp-content/uploads/shell.php", Result: rejected()},
		},
		FilesFlagged: 1,
	}

	o := New(&fakePolicy{}, nil, cleaner, quarantine, localfs.NewOS(), "/site", 1, logger.NewNop())
	result := o.Clean(context.Background(), rep)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.QuarantineFailed)
	assert.Zero(t, result.Quarantined)
	require.NotEmpty(t, result.Messages)
	assert.Contains(t, result.Messages[len(result.Messages)-1], "quarantine failed")
}
