package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ghassenk/jewelstore/internal/validate"
)

func TestValidateNewPassword(t *testing.T) {
	assert.ErrorIs(t, ValidateNewPassword("weak", "weak"), validate.ErrWeakPassword)
	assert.ErrorIs(t, ValidateNewPassword("Secret#123", "Secret#12"), ErrPasswordMismatch)
	assert.NoError(t, ValidateNewPassword("Secret#123", "Secret#123"))
}
