package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOTPInput_Enter(t *testing.T) {
	var in OTPInput

	assert.False(t, in.Enter(0, "a"))
	assert.False(t, in.Enter(0, "12"))
	assert.False(t, in.Enter(6, "1"))
	assert.Equal(t, 0, in.Focus())

	assert.True(t, in.Enter(0, "5"))
	assert.Equal(t, 1, in.Focus())
	assert.Equal(t, "5", in.Digits()[0])

	// The last slot keeps focus.
	assert.True(t, in.Enter(5, "9"))
	assert.Equal(t, 5, in.Focus())

	assert.True(t, in.Enter(0, ""))
	assert.Equal(t, "", in.Digits()[0])
	assert.Equal(t, 0, in.Focus())
}

func TestOTPInput_Backspace(t *testing.T) {
	var in OTPInput
	in.Enter(0, "1")
	in.Enter(1, "2")

	in.Backspace(1)
	assert.Equal(t, []string{"1", "", "", "", "", ""}, in.Digits())
	assert.Equal(t, 1, in.Focus())

	// Empty slot: focus moves back, content untouched.
	in.Backspace(1)
	assert.Equal(t, 0, in.Focus())
	assert.Equal(t, "1", in.Digits()[0])

	in.Backspace(0)
	in.Backspace(0)
	assert.Equal(t, 0, in.Focus())
}

func TestOTPInput_Arrows(t *testing.T) {
	var in OTPInput
	in.Right(0)
	assert.Equal(t, 1, in.Focus())
	in.Right(5)
	assert.Equal(t, 1, in.Focus())
	in.Left(3)
	assert.Equal(t, 2, in.Focus())
	in.Left(0)
	assert.Equal(t, 2, in.Focus())
}

func TestOTPInput_Paste(t *testing.T) {
	var in OTPInput

	assert.False(t, in.Paste("12345"))
	assert.False(t, in.Paste("12a456"))
	assert.False(t, in.Complete())

	assert.True(t, in.Paste(" 482913 "))
	assert.True(t, in.Complete())
	assert.Equal(t, "482913", in.Code())
	assert.Equal(t, CodeLength-1, in.Focus())

	in.Clear()
	assert.Equal(t, "", in.Code())
	assert.Equal(t, 0, in.Focus())
}

func TestOTPInput_DigitsIsACopy(t *testing.T) {
	var in OTPInput
	in.Enter(0, "7")
	d := in.Digits()
	d[0] = "x"
	assert.Equal(t, "7", in.Digits()[0])
}
