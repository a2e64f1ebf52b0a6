package provider

import (
	"context"

	"github.com/kursadbilgin/wa-dispatch/internal/domain"
)

// Channel is the outbound message delivery port a run sends through.
// Open acquires whatever the channel needs (a browser session, a client);
// Close releases it and must be safe to call after a failed Open.
type Channel interface {
	Name() string
	Open(ctx context.Context) error
	// Send never returns an error: every failure is an outcome with
	// status Error.
	Send(ctx context.Context, address domain.Address, message string) domain.DeliveryOutcome
	Close() error
}

// SessionReporter is implemented by channels that expose their session
// state for readiness checks.
type SessionReporter interface {
	SessionState() domain.SessionState
}

// GatewayResponse stores gateway call metadata for logging.
type GatewayResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
