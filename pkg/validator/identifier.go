// Package validator provides validation utilities for configuration
// structs and SQL identifiers.
package validator

import (
	"fmt"
	"regexp"

	"github.com/openwpsec/guard/pkg/domain/shared"
)

// columnNameRegex is the only shape an arbitrary column name may take
// before it is interpolated into a query. Anything else (backticks,
// spaces, semicolons) is rejected outright.
var columnNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// maxIdentifierLength mirrors the MySQL/Postgres identifier limit.
const maxIdentifierLength = 64

// IdentifierValidator validates dynamic SQL identifiers. Table names
// must come from an explicit allow-list; column names must match a
// strict character class. This check is mandatory on every dynamic
// identifier used to build a query, no exceptions.
type IdentifierValidator struct {
	allowedTables map[string]bool
}

// NewIdentifierValidator creates a validator with the given table
// allow-list.
func NewIdentifierValidator(allowedTables []string) *IdentifierValidator {
	allowed := make(map[string]bool, len(allowedTables))
	for _, t := range allowedTables {
		allowed[t] = true
	}
	return &IdentifierValidator{allowedTables: allowed}
}

// ValidateTable checks the table name against the allow-list.
func (v *IdentifierValidator) ValidateTable(name string) error {
	if name == "" {
		return shared.NewDomainError("IDENT_EMPTY", "table name is empty", shared.ErrValidation)
	}
	if !v.allowedTables[name] {
		return shared.NewDomainError("IDENT_TABLE_NOT_ALLOWED",
			fmt.Sprintf("table %q is not on the allow-list", name), shared.ErrValidation)
	}
	return nil
}

// ValidateColumn checks a column name against the strict character
// class.
func (v *IdentifierValidator) ValidateColumn(name string) error {
	if name == "" {
		return shared.NewDomainError("IDENT_EMPTY", "column name is empty", shared.ErrValidation)
	}
	if len(name) > maxIdentifierLength {
		return shared.NewDomainError("IDENT_TOO_LONG",
			fmt.Sprintf("column name exceeds %d characters", maxIdentifierLength), shared.ErrValidation)
	}
	if !columnNameRegex.MatchString(name) {
		return shared.NewDomainError("IDENT_BAD_COLUMN",
			fmt.Sprintf("column %q contains characters outside [A-Za-z0-9_]", name), shared.ErrValidation)
	}
	return nil
}

// AllowedTables returns the configured allow-list.
func (v *IdentifierValidator) AllowedTables() []string {
	out := make([]string, 0, len(v.allowedTables))
	for t := range v.allowedTables {
		out = append(out, t)
	}
	return out
}
