package identity

import (
	"fmt"
	"unicode"
)

// PasswordPolicy mirrors the usual identity defaults: six characters with at
// least one digit, lowercase, uppercase and non-alphanumeric character.
// MaxBytes is bcrypt's input limit; zero disables the check.
type PasswordPolicy struct {
	MinLength        int
	MaxBytes         int
	RequireDigit     bool
	RequireLowercase bool
	RequireUppercase bool
	RequireSymbol    bool
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        6,
		MaxBytes:         72,
		RequireDigit:     true,
		RequireLowercase: true,
		RequireUppercase: true,
		RequireSymbol:    true,
	}
}

// Validate returns every violated rule, in a stable order. Empty means valid.
func (p PasswordPolicy) Validate(password string) []string {
	var hasDigit, hasLower, hasUpper, hasSymbol bool
	n := 0
	for _, r := range password {
		n++
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case !unicode.IsLetter(r) && !unicode.IsNumber(r):
			hasSymbol = true
		}
	}

	var errs []string
	if n < p.MinLength {
		errs = append(errs, fmt.Sprintf("Passwords must be at least %d characters.", p.MinLength))
	}
	if p.MaxBytes > 0 && len(password) > p.MaxBytes {
		errs = append(errs, fmt.Sprintf("Passwords must be at most %d bytes.", p.MaxBytes))
	}
	if p.RequireSymbol && !hasSymbol {
		errs = append(errs, "Passwords must have at least one non alphanumeric character.")
	}
	if p.RequireDigit && !hasDigit {
		errs = append(errs, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.RequireLowercase && !hasLower {
		errs = append(errs, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.RequireUppercase && !hasUpper {
		errs = append(errs, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	return errs
}
