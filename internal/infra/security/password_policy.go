package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128

	requiredCharacterClasses = 4
	minStrengthScore         = 2
)

// Violation codes reported by PasswordPolicy.
const (
	PasswordTooShort      = "min_length"
	PasswordTooLong       = "max_length"
	PasswordMissingClass  = "character_classes"
	PasswordCommon        = "common_password"
	PasswordWeak          = "weak_password"
	PasswordPersonalized  = "personal_information"
	passwordPolicyMissing = "policy_missing"
)

// CommonPasswords is the deny-list matched case-insensitively as a substring.
var CommonPasswords = []string{
	"password", "123456", "12345678", "qwerty", "abc123", "letmein",
	"welcome", "monkey", "dragon", "iloveyou", "admin", "111111",
	"sunshine", "princess", "football", "baseball", "trustno1", "passw0rd",
}

// PasswordViolation is one broken rule of the password policy.
type PasswordViolation struct {
	Code    string
	Message string
}

func (v *PasswordViolation) Error() string {
	return v.Message
}

// PasswordPolicy describes what a newsroom account password must satisfy.
// The zero value accepts everything; use DefaultPasswordPolicy.
type PasswordPolicy struct {
	MinLength  int
	MaxLength  int
	MinClasses int
	MinScore   int
	DenyList   []string
	// UserInputs are account attributes (name, email) a password must not be built from.
	UserInputs []string
}

// DefaultPasswordPolicy is the signup and password-reset policy.
func DefaultPasswordPolicy() *PasswordPolicy {
	deny := make([]string, len(CommonPasswords))
	copy(deny, CommonPasswords)
	return &PasswordPolicy{
		MinLength:  MinPasswordLength,
		MaxLength:  MaxPasswordLength,
		MinClasses: requiredCharacterClasses,
		MinScore:   minStrengthScore,
		DenyList:   deny,
	}
}

// ForAccount returns a copy of the policy that also rejects passwords derived
// from the given account attributes. Email addresses contribute their local part.
func (p *PasswordPolicy) ForAccount(inputs ...string) *PasswordPolicy {
	clone := *p
	clone.UserInputs = append([]string(nil), p.UserInputs...)
	for _, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		clone.UserInputs = append(clone.UserInputs, in)
		if local, _, ok := strings.Cut(in, "@"); ok && local != "" {
			clone.UserInputs = append(clone.UserInputs, local)
		}
		if words := strings.Fields(in); len(words) > 1 {
			clone.UserInputs = append(clone.UserInputs, words...)
		}
	}
	return &clone
}

// Validate returns the first violation, or nil when the password is acceptable.
func (p *PasswordPolicy) Validate(password string) error {
	if p == nil {
		return &PasswordViolation{Code: passwordPolicyMissing, Message: "password policy not configured"}
	}
	if violations := p.Violations(password); len(violations) > 0 {
		return &violations[0]
	}
	return nil
}

// Violations evaluates every rule. Length is checked first; an over-long
// password skips the strength estimate.
func (p *PasswordPolicy) Violations(password string) []PasswordViolation {
	var out []PasswordViolation

	n := len([]rune(password))
	switch {
	case n < p.MinLength:
		out = append(out, PasswordViolation{
			Code:    PasswordTooShort,
			Message: fmt.Sprintf("password must be at least %d characters long", p.MinLength),
		})
	case p.MaxLength > 0 && n > p.MaxLength:
		return append(out, PasswordViolation{
			Code:    PasswordTooLong,
			Message: fmt.Sprintf("password must be at most %d characters long", p.MaxLength),
		})
	}

	if characterClasses(password) < p.MinClasses {
		out = append(out, PasswordViolation{
			Code:    PasswordMissingClass,
			Message: "password must include uppercase, lowercase, digit and symbol characters",
		})
	}

	lowered := strings.ToLower(password)
	for _, common := range p.DenyList {
		if common = strings.ToLower(strings.TrimSpace(common)); common != "" && strings.Contains(lowered, common) {
			out = append(out, PasswordViolation{Code: PasswordCommon, Message: "password is too common"})
			break
		}
	}

	for _, in := range p.UserInputs {
		if len(in) >= 3 && strings.Contains(lowered, strings.ToLower(in)) {
			out = append(out, PasswordViolation{Code: PasswordPersonalized, Message: "password must not contain your name or email"})
			break
		}
	}

	if p.MinScore > 0 && len(out) == 0 {
		if zxcvbn.PasswordStrength(password, p.UserInputs).Score < min(p.MinScore, 4) {
			out = append(out, PasswordViolation{Code: PasswordWeak, Message: "password is too weak; choose a more complex value"})
		}
	}

	return out
}

func characterClasses(password string) int {
	var upper, lower, digit, symbol int
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = 1
		case unicode.IsLower(r):
			lower = 1
		case unicode.IsDigit(r):
			digit = 1
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			symbol = 1
		}
	}
	return upper + lower + digit + symbol
}
