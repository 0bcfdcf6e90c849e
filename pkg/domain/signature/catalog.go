package signature

import (
	"regexp"

	"github.com/openwpsec/guard/pkg/logger"
)

// Catalog holds the validated signature set. It is built once at startup
// and never mutated afterwards, so it is safe to share across concurrent
// scans without locking.
type Catalog struct {
	signatures []Signature
}

// NewCatalog compiles the given definitions into a catalog. Definitions
// whose pattern fails to compile are logged with an error code and
// omitted from the active set; a bad pattern must never abort scanning
// or silently match.
func NewCatalog(defs []Definition, log *logger.Logger) *Catalog {
	signatures := make([]Signature, 0, len(defs))

	for _, def := range defs {
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			log.Error("signature pattern failed to compile, excluded from active set",
				"code", "SIG_COMPILE_FAILED",
				"pattern", def.Pattern,
				"error", err.Error(),
			)
			continue
		}

		sev := def.Severity
		if !sev.IsValid() {
			log.Warn("signature has unknown severity, defaulting to medium",
				"pattern", def.Pattern,
				"severity", string(def.Severity),
			)
			sev = SeverityMedium
		}

		signatures = append(signatures, Signature{
			Pattern:     re,
			Severity:    sev,
			Description: def.Description,
			Kind:        def.Kind,
		})
	}

	return &Catalog{signatures: signatures}
}

// Active returns the active signatures in declaration order. Scanners
// test signatures in this order and the first match is authoritative, so
// severity-first authoring controls match priority.
func (c *Catalog) Active() []Signature {
	return c.signatures
}

// Len returns the number of active signatures.
func (c *Catalog) Len() int {
	return len(c.signatures)
}

// ByKind returns the active signatures of one kind, preserving
// declaration order.
func (c *Catalog) ByKind(kind Kind) []Signature {
	out := make([]Signature, 0, len(c.signatures))
	for _, sig := range c.signatures {
		if sig.Kind == kind {
			out = append(out, sig)
		}
	}
	return out
}

// HighSeverity returns the subset of signatures at high severity or
// above. The file policy uses this narrower set when re-scanning content
// under the protected theme exception.
func (c *Catalog) HighSeverity() []Signature {
	out := make([]Signature, 0, len(c.signatures))
	for _, sig := range c.signatures {
		if sig.Severity.Rank() >= SeverityHigh.Rank() {
			out = append(out, sig)
		}
	}
	return out
}
