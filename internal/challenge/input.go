package challenge

import "strings"

// CodeLength is the number of OTP digit slots.
const CodeLength = 6

// OTPInput models the ordered digit slots of the OTP form and which slot has
// focus. Anything other than a single [0-9] character or "" is ignored.
type OTPInput struct {
	digits [CodeLength]string
	focus  int
}

// Enter sets slot i to s. A non-empty digit moves focus to the next slot.
// It reports whether the input was accepted.
func (in *OTPInput) Enter(i int, s string) bool {
	if i < 0 || i >= CodeLength {
		return false
	}
	if s == "" {
		in.digits[i] = ""
		in.focus = i
		return true
	}
	if !isDigit(s) {
		return false
	}
	in.digits[i] = s
	in.focus = i
	if i+1 < CodeLength {
		in.focus = i + 1
	}
	return true
}

// Backspace clears a filled slot, or moves focus back from an empty one.
func (in *OTPInput) Backspace(i int) {
	if i < 0 || i >= CodeLength {
		return
	}
	if in.digits[i] != "" {
		in.digits[i] = ""
		in.focus = i
		return
	}
	if i > 0 {
		in.focus = i - 1
	}
}

// Left moves focus to the slot before i without touching content.
func (in *OTPInput) Left(i int) {
	if i > 0 && i < CodeLength {
		in.focus = i - 1
	}
}

// Right moves focus to the slot after i without touching content.
func (in *OTPInput) Right(i int) {
	if i >= 0 && i+1 < CodeLength {
		in.focus = i + 1
	}
}

// Paste fills every slot from a full code. Anything else is ignored.
func (in *OTPInput) Paste(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < CodeLength; i++ {
		if !isDigit(s[i : i+1]) {
			return false
		}
	}
	for i := 0; i < CodeLength; i++ {
		in.digits[i] = s[i : i+1]
	}
	in.focus = CodeLength - 1
	return true
}

// Clear empties every slot and focuses the first one.
func (in *OTPInput) Clear() {
	in.digits = [CodeLength]string{}
	in.focus = 0
}

// Code concatenates the slots in order.
func (in *OTPInput) Code() string {
	return strings.Join(in.digits[:], "")
}

// Complete reports whether every slot holds a digit.
func (in *OTPInput) Complete() bool {
	for _, d := range in.digits {
		if d == "" {
			return false
		}
	}
	return true
}

// Digits returns a copy of the slots.
func (in *OTPInput) Digits() []string {
	out := make([]string, CodeLength)
	copy(out, in.digits[:])
	return out
}

func (in *OTPInput) Focus() int {
	return in.focus
}

func isDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}
