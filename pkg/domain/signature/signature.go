// Package signature defines the malware signature model and the catalog
// that holds the compiled signature set used by all scanners.
package signature

import "regexp"

// Severity classifies how dangerous a matched signature is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank returns a numeric rank for severity comparison (higher is worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// Kind groups signatures by what they target.
type Kind string

const (
	// KindMalicious marks direct malicious code patterns.
	KindMalicious Kind = "malicious"
	// KindObfuscation marks obfuscation techniques that hide payloads.
	KindObfuscation Kind = "obfuscation"
	// KindDatabase marks patterns applied to database row content.
	KindDatabase Kind = "database"
)

// Definition is one signature as authored in configuration: a raw regex
// plus metadata. Definitions are compiled into Signatures by the Catalog.
type Definition struct {
	Pattern     string   `yaml:"pattern" validate:"required"`
	Severity    Severity `yaml:"severity" validate:"required"`
	Description string   `yaml:"description" validate:"required"`
	Kind        Kind     `yaml:"kind" validate:"required"`
}

// Signature is a compiled, immutable signature. The compiled matcher is
// safe for concurrent use.
type Signature struct {
	Pattern     *regexp.Regexp
	Severity    Severity
	Description string
	Kind        Kind
}

// Name returns the raw pattern source, used as the signature's identity
// in issues and verdicts.
func (s Signature) Name() string {
	return s.Pattern.String()
}
