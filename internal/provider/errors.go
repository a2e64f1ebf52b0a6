package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// GatewayError is a failed call to a delivery gateway. Retryable marks
// failures worth another attempt (throttling, 5xx, timeouts).
type GatewayError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("gateway error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a send that failed with err may succeed when
// repeated. Cancellation never is.
func IsTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Retryable
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
