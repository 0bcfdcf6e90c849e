package report

import "github.com/openwpsec/guard/pkg/domain/signature"

// Verdict is the outcome of scanning one file's content. When the file
// is unsafe, the first matching signature, its absolute byte offset and
// a short context snippet around the match are carried for audit
// logging.
type Verdict struct {
	Safe           bool                 `json:"safe"`
	Reason         string               `json:"reason"`
	Matched        *signature.Signature `json:"-"`
	MatchedPattern string               `json:"matched_pattern,omitempty"`
	Severity       signature.Severity   `json:"severity,omitempty"`
	Offset         int64                `json:"offset,omitempty"`
	ContextSnippet string               `json:"context_snippet,omitempty"`
}

// SafeVerdict returns a safe verdict with the given reason.
func SafeVerdict(reason string) Verdict {
	return Verdict{Safe: true, Reason: reason}
}

// UnsafeVerdict returns an unsafe verdict with match evidence.
func UnsafeVerdict(sig signature.Signature, offset int64, snippet string) Verdict {
	return Verdict{
		Safe:           false,
		Reason:         sig.Description,
		Matched:        &sig,
		MatchedPattern: sig.Name(),
		Severity:       sig.Severity,
		Offset:         offset,
		ContextSnippet: snippet,
	}
}

// ValidationResult is produced by each file policy pipeline stage. The
// pipeline short-circuits on the first invalid result.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
	// Monitored marks files accepted under the protected theme
	// exception; they pass validation but are logged for follow-up.
	Monitored bool `json:"monitored,omitempty"`
	// QuarantineEligible marks rejections severe enough to hand the
	// file to the quarantine manager.
	QuarantineEligible bool `json:"quarantine_eligible,omitempty"`
}

// ValidResult returns a passing result for a stage.
func ValidResult(stage string) ValidationResult {
	return ValidationResult{Valid: true, Stage: stage}
}

// InvalidResult returns a failing result for a stage.
func InvalidResult(stage, reason string) ValidationResult {
	return ValidationResult{Valid: false, Stage: stage, Reason: reason}
}
