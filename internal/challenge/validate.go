package challenge

import (
	"errors"

	"github.com/ghassenk/jewelstore/internal/validate"
)

// Form-only validation failures. Their text is shown to the user as is.
var (
	ErrPasswordRequired = errors.New("please enter your password")
	ErrIncompleteCode   = errors.New("please enter the 6-digit code")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// ValidateNewPassword checks complexity and the confirmation field.
func ValidateNewPassword(pw, confirm string) error {
	if err := validate.Password(pw); err != nil {
		return err
	}
	if pw != confirm {
		return ErrPasswordMismatch
	}
	return nil
}
