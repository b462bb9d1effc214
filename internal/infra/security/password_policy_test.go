package security

import (
	"errors"
	"testing"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
)

func policyCode(t *testing.T, err error) string {
	t.Helper()
	var violation *PasswordValidationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected a policy violation, got %v", err)
	}
	return violation.Code
}

func TestPasswordPolicyAcceptsStrongPassword(t *testing.T) {
	policy := NewPasswordPolicy()

	for _, password := range []string{
		"Str0ng!Passw0rd",
		"Tr@d1ng-Floor-2026",
		"Bourse&Valeurs99",
	} {
		if err := policy.Validate(password, domain.PasswordContext{}); err != nil {
			t.Errorf("expected %q to pass, got %v", password, err)
		}
	}
}

func TestPasswordPolicyRuleViolations(t *testing.T) {
	policy := NewPasswordPolicy()

	cases := []struct {
		name     string
		password string
		code     string
	}{
		{"too short", "Ab1!", "min_length"},
		{"missing lowercase", "STR0NG!PASSWORD", "lowercase"},
		{"missing uppercase", "str0ng!password", "uppercase"},
		{"missing digit", "Strong!Password", "digit"},
		{"missing special character", "Str0ngPassword", "special_character"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.Validate(tc.password, domain.PasswordContext{})
			if got := policyCode(t, err); got != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, got)
			}
		})
	}
}

func TestPasswordPolicySymbolMustComeFromAllowedSet(t *testing.T) {
	policy := NewPasswordPolicy()

	// A tilde is a symbol, but not one the platform accepts.
	err := policy.Validate("Str0ngPassword~", domain.PasswordContext{})
	if got := policyCode(t, err); got != "special_character" {
		t.Fatalf("expected special_character, got %s", got)
	}
}

func TestPasswordPolicyRejectsWeakChoices(t *testing.T) {
	policy := NewPasswordPolicy()

	err := policy.Validate("Password1!", domain.PasswordContext{})
	if got := policyCode(t, err); got != "weak_password" {
		t.Fatalf("expected weak_password, got %s", got)
	}
}

func TestPasswordPolicyUsesUserContext(t *testing.T) {
	policy := NewPasswordPolicy()
	ctx := domain.PasswordContext{Name: "Awa Diop", Email: "awa.diop@example.com"}

	// Passes the character rules but is just the user's own email with a
	// two-character suffix, which the strength check penalizes.
	err := policy.Validate("Awa.diop@example.comA1", ctx)
	if err == nil {
		t.Fatal("expected identity-derived password to be rejected")
	}
	if got := policyCode(t, err); got != "weak_password" {
		t.Fatalf("expected weak_password, got %s", got)
	}

	// The same string without the matching context is fine.
	if err := policy.Validate("Awa.diop@example.comA1", domain.PasswordContext{}); err != nil {
		t.Fatalf("expected password to pass without matching context, got %v", err)
	}
}

func TestRequireDifferentFrom(t *testing.T) {
	rule := RequireDifferentFrom("Old!Passw0rd")

	if err := rule.Validate("Old!Passw0rd"); err == nil {
		t.Fatal("expected identical password to be rejected")
	}
	if err := rule.Validate("New!Passw0rd"); err != nil {
		t.Fatalf("expected different password to pass, got %v", err)
	}
}
