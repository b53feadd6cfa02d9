package otpcode

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoActiveCode is returned when no live code exists for the account
	ErrNoActiveCode = errors.New("no active code")

	// ErrExpired is returned when the code is past its expiry, even on an
	// exact value match
	ErrExpired = errors.New("code expired")

	// ErrMismatch is returned when the submitted value differs from the
	// stored code
	ErrMismatch = errors.New("code mismatch")

	// ErrResendTooSoon is returned when a code was already sent within the
	// cooldown window
	ErrResendTooSoon = errors.New("code requested too soon")
)

// ResendTooSoonError carries the remaining cooldown so callers can surface a
// countdown. It matches ErrResendTooSoon under errors.Is.
type ResendTooSoonError struct {
	Remaining time.Duration
}

func (e *ResendTooSoonError) Error() string {
	return fmt.Sprintf("code requested too soon, retry in %ds", e.RemainingSeconds())
}

func (e *ResendTooSoonError) Unwrap() error {
	return ErrResendTooSoon
}

// RemainingSeconds returns the remaining cooldown rounded up to whole
// seconds, never less than 1.
func (e *ResendTooSoonError) RemainingSeconds() int {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
