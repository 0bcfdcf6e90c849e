// Package report defines the result types produced by scans and
// remediation: issues, verdicts, validation results, and operation
// summaries. These are plain values created per operation and consumed
// by the caller; nothing in this package is persisted.
package report

import (
	"time"

	"github.com/openwpsec/guard/pkg/domain/signature"
)

// IssueType classifies a database scan finding.
type IssueType string

const (
	IssueMissingTable       IssueType = "missing_table"
	IssueMissingColumn      IssueType = "missing_column"
	IssueUnexpectedColumn   IssueType = "unexpected_column"
	IssueMissingIndex       IssueType = "missing_index"
	IssueMaliciousContent   IssueType = "malicious_content"
	IssueSuspiciousOption   IssueType = "suspicious_option"
	IssueSuspiciousUserMeta IssueType = "suspicious_usermeta"
	IssueCheckError         IssueType = "check_error"
)

// Issue is one database scan finding. Content matches produce one issue
// per matched row and pattern; they are not deduplicated.
type Issue struct {
	Type           IssueType          `json:"type"`
	Table          string             `json:"table"`
	Column         string             `json:"column,omitempty"`
	RowID          int64              `json:"row_id,omitempty"`
	Severity       signature.Severity `json:"severity"`
	Message        string             `json:"message"`
	MatchedPattern string             `json:"matched_pattern,omitempty"`
	DetectedAt     time.Time          `json:"detected_at"`
}

// Cleanable reports whether the remediator can act on this issue. Only
// malicious row content is deleted; integrity findings are advisory.
func (i Issue) Cleanable() bool {
	return i.Type == IssueMaliciousContent && i.RowID > 0
}
