package domain

import "errors"

// Fatal errors abort the run; every other error is recovered at the
// recipient boundary and surfaces only as a DeliveryOutcome.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrLoginTimedOut = errors.New("login timed out")
)

// Recipient-level errors.
var (
	ErrInvalidPhone          = errors.New("invalid phone")
	ErrElementNotFound       = errors.New("element not found")
	ErrTemplateFieldMissing  = errors.New("template field missing")
	ErrUnknownDeliveryStatus = errors.New("unknown delivery status")
)

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrLoginTimedOut)
}
