package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openwpsec/guard/pkg/domain/signature"
)

// RulesFile is the on-disk shape of the operator-supplied rules file.
// When no file is configured the built-in signature set is used.
type RulesFile struct {
	Signatures []signature.Definition `yaml:"signatures" validate:"dive"`

	// SuspiciousNamePatterns extend the wildcard list matched against
	// option names and user-meta keys.
	SuspiciousNamePatterns []string `yaml:"suspicious_name_patterns"`
}

var rulesValidate = validator.New(validator.WithRequiredStructEnabled())

// LoadRules reads and validates the rules file at path. An empty path
// returns the built-in defaults.
func LoadRules(path string) (*RulesFile, error) {
	rules := &RulesFile{
		Signatures:             signature.DefaultDefinitions(),
		SuspiciousNamePatterns: DefaultSuspiciousNamePatterns(),
	}

	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	if err := rulesValidate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid rules file: %w", err)
	}

	if len(file.Signatures) > 0 {
		rules.Signatures = file.Signatures
	}
	if len(file.SuspiciousNamePatterns) > 0 {
		rules.SuspiciousNamePatterns = file.SuspiciousNamePatterns
	}

	return rules, nil
}

// DefaultSuspiciousNamePatterns returns the built-in wildcard list for
// option names and user-meta keys.
func DefaultSuspiciousNamePatterns() []string {
	return []string{"eval", "base64", "shell", "backdoor", "rootkit", "webshell", "inject"}
}
