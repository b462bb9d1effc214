package security

import (
	"fmt"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
)

const (
	defaultMinPasswordLength = 8
	defaultMinZxcvbnScore    = 1

	// passwordSymbolSet lists the special characters accepted by the
	// platform password policy.
	passwordSymbolSet = "!@#$%^&*()_-+="
)

// DefaultPasswordValidator returns the built-in validator enforcing the
// platform password policy: minimum length plus one lowercase, one
// uppercase, one digit, and one special character, backed by a zxcvbn
// strength check.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireLowercaseRule(),
		RequireUppercaseRule(),
		RequireDigitRule(),
		RequireSymbolFromSetRule(passwordSymbolSet),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore),
	)
}

// NewPasswordValidatorWithContext allows callers to include additional user inputs (e.g. email) for strength checking.
func NewPasswordValidatorWithContext(userInputs ...string) *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireLowercaseRule(),
		RequireUppercaseRule(),
		RequireDigitRule(),
		RequireSymbolFromSetRule(passwordSymbolSet),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore, userInputs...),
	)
}

// PasswordPolicy adapts the password validator to the domain-level policy interface.
type PasswordPolicy struct {
	factory func(inputs []string) *PasswordValidator
}

// NewPasswordPolicy builds a policy that accounts for contextual user inputs when validating passwords.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		factory: func(inputs []string) *PasswordValidator {
			return NewPasswordValidatorWithContext(inputs...)
		},
	}
}

// NewPasswordPolicyFromValidator wraps an existing validator instance without contextual enhancements.
func NewPasswordPolicyFromValidator(validator *PasswordValidator) *PasswordPolicy {
	if validator == nil {
		validator = DefaultPasswordValidator()
	}
	return &PasswordPolicy{
		factory: func(_ []string) *PasswordValidator {
			return validator
		},
	}
}

// Validate applies the configured validator to ensure the password meets policy requirements.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if p == nil || p.factory == nil {
		return fmt.Errorf("password policy not configured")
	}

	inputs := make([]string, 0, 2)
	if ctx.Name != "" {
		inputs = append(inputs, ctx.Name)
	}
	if ctx.Email != "" {
		inputs = append(inputs, ctx.Email)
	}

	validator := p.factory(inputs)
	if validator == nil {
		return fmt.Errorf("password validator not configured")
	}

	return validator.Validate(password)
}
