package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", ErrEmailRequired},
		{"plain", ErrInvalidEmail},
		{"Bob <bob@example.com>", ErrInvalidEmail},
		{"bob@", ErrInvalidEmail},
		{"bob@example.com", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Email(tt.in))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "bob@example.com", NormalizeEmail("  Bob@Example.COM "))
}

func TestPassword(t *testing.T) {
	assert.ErrorIs(t, Password("a1#"), ErrWeakPassword)
	assert.ErrorIs(t, Password("abcdefgh"), ErrWeakPassword)
	assert.ErrorIs(t, Password("abcdefg1"), ErrWeakPassword)
	assert.ErrorIs(t, Password("12345678!"), ErrWeakPassword)
	assert.NoError(t, Password("abcdef1!"))
}
