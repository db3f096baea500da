// Package authform implements the sign-in / registration screen: field
// validation, the password strength meter and submission.
package authform

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Mode selects between signing in and registering.
type Mode int

const (
	ModeLogin Mode = iota
	ModeRegister
)

func (m Mode) String() string {
	if m == ModeRegister {
		return "register"
	}
	return "login"
}

// Field keys used in FieldErrors.
const (
	FieldEmail    = "email"
	FieldName     = "name"
	FieldPassword = "password"
	FieldConfirm  = "confirm"
	FieldServer   = "server"
)

// ErrInvalid is returned by Submit when validation blocks the request.
var ErrInvalid = errors.New("form has invalid fields")

// Form holds the raw field values.
type Form struct {
	Email    string
	Password string
	Name     string
	Confirm  string
}

// FieldErrors maps a field key to its message.
type FieldErrors map[string]string

// Has reports whether field has an error.
func (e FieldErrors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

var emailPattern = regexp.MustCompile(`^[\w.+\-]+@([\w\-]+\.)+[A-Za-z]{2,}$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// MinNameLength and MinPasswordLength apply to registration.
const (
	MinNameLength     = 2
	MinPasswordLength = 8
)

// Validate checks f for mode and returns the failing fields. An empty
// result means the form may be submitted.
func Validate(mode Mode, f Form) FieldErrors {
	errs := FieldErrors{}
	if !ValidEmail(f.Email) {
		errs[FieldEmail] = "enter a valid email address"
	}
	if mode == ModeRegister {
		if utf8.RuneCountInString(strings.TrimSpace(f.Name)) < MinNameLength {
			errs[FieldName] = "display name must be at least 2 characters"
		}
		if utf8.RuneCountInString(f.Password) < MinPasswordLength {
			errs[FieldPassword] = "password must be at least 8 characters"
		}
		if f.Password != f.Confirm {
			errs[FieldConfirm] = "passwords do not match"
		}
	} else if f.Password == "" {
		errs[FieldPassword] = "enter your password"
	}
	return errs
}

// MaxStrength is the top of the strength scale.
const MaxStrength = 5

// PasswordStrength scores pw from 0 to 5: one point each for a length of at
// least 8, a length of at least 12, a digit, an upper-case ASCII letter and
// a character outside [A-Za-z0-9].
func PasswordStrength(pw string) int {
	if pw == "" {
		return 0
	}
	n := utf8.RuneCountInString(pw)
	score := 0
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}

	var digit, upper, symbol bool
	for _, r := range pw {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
		default:
			symbol = true
		}
	}
	for _, ok := range []bool{digit, upper, symbol} {
		if ok {
			score++
		}
	}
	return min(score, MaxStrength)
}

// StrengthLabel buckets a score the way the meter colours it.
func StrengthLabel(score int) string {
	switch {
	case score <= 2:
		return "weak"
	case score == 3:
		return "fair"
	default:
		return "strong"
	}
}
