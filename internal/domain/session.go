package domain

// SessionState is the authentication state of the messaging web client.
type SessionState string

const (
	SessionUnauthenticated SessionState = "UNAUTHENTICATED"
	SessionAwaitingScan    SessionState = "AWAITING_SCAN"
	SessionAuthenticated   SessionState = "AUTHENTICATED"
	SessionLoginTimedOut   SessionState = "LOGIN_TIMED_OUT"
)

func (s SessionState) String() string { return string(s) }

func (s SessionState) IsValid() bool {
	switch s {
	case SessionUnauthenticated, SessionAwaitingScan, SessionAuthenticated, SessionLoginTimedOut:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can happen in this run.
func (s SessionState) IsTerminal() bool {
	return s == SessionAuthenticated || s == SessionLoginTimedOut
}

// SessionStates lists every state, in lifecycle order.
func SessionStates() []SessionState {
	return []SessionState{
		SessionUnauthenticated,
		SessionAwaitingScan,
		SessionAuthenticated,
		SessionLoginTimedOut,
	}
}
