package report

import "time"

// FileResult pairs a scanned path with its policy outcome.
type FileResult struct {
	Path    string           `json:"path"`
	Result  ValidationResult `json:"result"`
	Verdict *Verdict         `json:"verdict,omitempty"`
	// Err carries a scan failure (unreadable mid-scan, vanished file);
	// a failed scan is never reported as safe.
	Err string `json:"error,omitempty"`
}

// ScanReport is the structured result of one scan invocation, covering
// the filesystem and database sides.
type ScanReport struct {
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	FilesScanned int          `json:"files_scanned"`
	FilesFlagged int          `json:"files_flagged"`
	Files        []FileResult `json:"files,omitempty"`
	Issues       []Issue      `json:"issues,omitempty"`
}

// FlaggedFiles returns the file results that failed validation.
func (r *ScanReport) FlaggedFiles() []FileResult {
	out := make([]FileResult, 0, r.FilesFlagged)
	for _, f := range r.Files {
		if !f.Result.Valid && f.Err == "" {
			out = append(out, f)
		}
	}
	return out
}

// CleanableIssues returns the issues the remediator can act on.
func (r *ScanReport) CleanableIssues() []Issue {
	out := make([]Issue, 0, len(r.Issues))
	for _, issue := range r.Issues {
		if issue.Cleanable() {
			out = append(out, issue)
		}
	}
	return out
}

// CleanResult is the structured result of one remediation run. Every
// row and file touched, skipped or failed is accounted for; callers are
// never handed a bare boolean.
type CleanResult struct {
	Success          bool      `json:"success"`
	RolledBack       bool      `json:"rolled_back"`
	BackupID         string    `json:"backup_id,omitempty"`
	RowsDeleted      int       `json:"rows_deleted"`
	RowsSkipped      int       `json:"rows_skipped"`
	RowsFailed       int       `json:"rows_failed"`
	Quarantined      int       `json:"quarantined"`
	QuarantineFailed int       `json:"quarantine_failed"`
	Messages         []string  `json:"messages,omitempty"`
	FinishedAt       time.Time `json:"finished_at"`
}

// AddMessage appends a per-item message to the result.
func (r *CleanResult) AddMessage(msg string) {
	r.Messages = append(r.Messages, msg)
}

// RestoreResult reports a row-backup restore operation.
type RestoreResult struct {
	Success      bool     `json:"success"`
	RowsRestored int      `json:"rows_restored"`
	RowsFailed   int      `json:"rows_failed"`
	Message      string   `json:"message,omitempty"`
	Messages     []string `json:"messages,omitempty"`
}
