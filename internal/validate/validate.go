// Package validate holds the input rules shared by the identity service and
// the storefront login forms. Error texts are shown to users as is.
package validate

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

var (
	ErrEmailRequired = errors.New("please enter your email address")
	ErrInvalidEmail  = errors.New("please enter a valid email address")
	ErrWeakPassword  = errors.New("password must be at least 8 characters and include a letter, a number and a symbol")
)

// MinPasswordLength is the shortest accepted new password.
const MinPasswordLength = 8

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email checks that email is a bare address, without display name.
func Email(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || !strings.EqualFold(addr.Address, email) {
		return ErrInvalidEmail
	}
	return nil
}

// Password enforces the complexity rule for new passwords.
func Password(pw string) error {
	if len(pw) < MinPasswordLength {
		return ErrWeakPassword
	}
	var letter, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !letter || !digit || !symbol {
		return ErrWeakPassword
	}
	return nil
}
