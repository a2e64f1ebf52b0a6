package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/browser"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultScanTimeout     = 120 * time.Second
	defaultPostScanTimeout = 5 * time.Minute
	defaultAuthTimeout     = 30 * time.Second
	defaultPollInterval    = 500 * time.Millisecond
	defaultDismissTimeout  = 2 * time.Second
	defaultDismissRounds   = 3
	defaultDismissPause    = time.Second
)

// SessionConfig bounds every wait of the login state machine.
type SessionConfig struct {
	EntryURL string
	// ScanTimeout bounds the wait for either the chat list or the QR code.
	ScanTimeout time.Duration
	// PostScanTimeout bounds the wait for the operator's scan confirmation.
	PostScanTimeout time.Duration
	// AuthTimeout bounds the re-poll for the chat list after confirmation.
	AuthTimeout    time.Duration
	PollInterval   time.Duration
	DismissTimeout time.Duration
	DismissRounds  int
	DismissPause   time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = defaultScanTimeout
	}
	if c.PostScanTimeout <= 0 {
		c.PostScanTimeout = defaultPostScanTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaultAuthTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.DismissTimeout <= 0 {
		c.DismissTimeout = defaultDismissTimeout
	}
	if c.DismissRounds <= 0 {
		c.DismissRounds = defaultDismissRounds
	}
	if c.DismissPause <= 0 {
		c.DismissPause = defaultDismissPause
	}
	return c
}

type marker int

const (
	markerNone marker = iota
	markerAuthenticated
	markerQR
)

// SessionManager drives the client from its entry page to an authenticated
// chat surface. State is safe to read from other goroutines.
type SessionManager struct {
	driver    browser.Driver
	selectors browser.Selectors
	confirm   Confirmation
	cfg       SessionConfig
	logger    *zap.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	state     domain.SessionState
	listeners []func(domain.SessionState)
}

func NewSessionManager(
	driver browser.Driver,
	selectors browser.Selectors,
	confirm Confirmation,
	cfg SessionConfig,
	logger *zap.Logger,
) (*SessionManager, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: browser driver is required", domain.ErrConfiguration)
	}
	if confirm == nil {
		return nil, fmt.Errorf("%w: scan confirmation source is required", domain.ErrConfiguration)
	}
	if cfg.EntryURL == "" {
		return nil, fmt.Errorf("%w: entry url is required", domain.ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SessionManager{
		driver:    driver,
		selectors: selectors,
		confirm:   confirm,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
		sleep:     sleepWithContext,
		state:     domain.SessionUnauthenticated,
	}, nil
}

// OnStateChange registers fn to be called after every state transition.
func (m *SessionManager) OnStateChange(fn func(domain.SessionState)) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *SessionManager) State() domain.SessionState {
	if m == nil {
		return domain.SessionUnauthenticated
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Establish opens the entry page and blocks until the session is
// authenticated. LoginTimedOut is returned with an error wrapping
// domain.ErrLoginTimedOut; a browser that cannot open the page yields
// domain.ErrConfiguration.
func (m *SessionManager) Establish(ctx context.Context) (domain.SessionState, error) {
	m.setState(domain.SessionUnauthenticated)

	if err := m.driver.Navigate(ctx, m.cfg.EntryURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return m.State(), ctxErr
		}
		return m.State(), fmt.Errorf("%w: open %s: %v", domain.ErrConfiguration, m.cfg.EntryURL, err)
	}

	found, err := m.waitForMarker(ctx, m.cfg.ScanTimeout, true)
	if err != nil {
		return m.State(), err
	}

	switch found {
	case markerNone:
		return m.timedOut(fmt.Sprintf("neither chat list nor QR code appeared within %s", m.cfg.ScanTimeout))
	case markerQR:
		m.setState(domain.SessionAwaitingScan)
		m.logger.Info("waiting for QR scan confirmation",
			zap.Duration("timeout", m.cfg.PostScanTimeout),
		)

		waitCtx, cancel := context.WithTimeout(ctx, m.cfg.PostScanTimeout)
		confirmErr := m.confirm.Await(waitCtx)
		cancel()
		if confirmErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return m.State(), ctxErr
			}
			if errors.Is(confirmErr, context.DeadlineExceeded) {
				return m.timedOut(fmt.Sprintf("no scan confirmation within %s", m.cfg.PostScanTimeout))
			}
			return m.timedOut(fmt.Sprintf("scan confirmation failed: %v", confirmErr))
		}

		found, err = m.waitForMarker(ctx, m.cfg.AuthTimeout, false)
		if err != nil {
			return m.State(), err
		}
		if found != markerAuthenticated {
			return m.timedOut(fmt.Sprintf("chat list did not appear within %s of scan confirmation", m.cfg.AuthTimeout))
		}
	}

	m.setState(domain.SessionAuthenticated)
	m.DismissDialogs(ctx)
	return domain.SessionAuthenticated, nil
}

// DismissDialogs clicks away interstitial dialogs. It tries the dismissal
// list up to DismissRounds times and reports whether anything was
// dismissed. Nothing to dismiss is not an error.
func (m *SessionManager) DismissDialogs(ctx context.Context) bool {
	if len(m.selectors.Dismiss) == 0 {
		return false
	}

	matchers := browser.OverrideTimeout(m.selectors.Dismiss, m.cfg.DismissTimeout)
	dismissed := false
	for round := 1; round <= m.cfg.DismissRounds; round++ {
		el, matched, err := browser.FirstMatch(ctx, m.driver, matchers)
		switch {
		case err == nil:
			if clickErr := el.Click(ctx); clickErr != nil {
				m.logger.Debug("dialog dismissal click failed",
					zap.String("matcher", matched.String()),
					zap.Error(clickErr),
				)
			} else {
				dismissed = true
				m.logger.Info("dialog dismissed", zap.String("matcher", matched.String()))
				// Another dialog may be stacked underneath.
				continue
			}
		case errors.Is(err, browser.ErrNotFound):
			if dismissed {
				return true
			}
		default:
			m.logger.Debug("dialog dismissal aborted", zap.Error(err))
			return dismissed
		}

		if round < m.cfg.DismissRounds {
			if err := m.sleep(ctx, m.cfg.DismissPause); err != nil {
				return dismissed
			}
		}
	}
	return dismissed
}

func (m *SessionManager) waitForMarker(ctx context.Context, timeout time.Duration, withQR bool) (marker, error) {
	deadline := m.now().Add(timeout)
	for {
		ok, err := m.probe(ctx, m.selectors.Authenticated)
		if err != nil {
			return markerNone, err
		}
		if ok {
			return markerAuthenticated, nil
		}

		if withQR {
			ok, err = m.probe(ctx, m.selectors.LoginQR)
			if err != nil {
				return markerNone, err
			}
			if ok {
				return markerQR, nil
			}
		}

		if !m.now().Before(deadline) {
			return markerNone, nil
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return markerNone, err
		}
	}
}

// probe checks matchers once, each with a poll-interval budget.
func (m *SessionManager) probe(ctx context.Context, matchers []browser.Matcher) (bool, error) {
	_, _, err := browser.FirstMatch(ctx, m.driver, browser.OverrideTimeout(matchers, m.cfg.PollInterval))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, browser.ErrNotFound) {
		return false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return false, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
}

func (m *SessionManager) timedOut(reason string) (domain.SessionState, error) {
	m.setState(domain.SessionLoginTimedOut)
	return domain.SessionLoginTimedOut, fmt.Errorf("%w: %s", domain.ErrLoginTimedOut, reason)
}

func (m *SessionManager) setState(next domain.SessionState) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	listeners := append([]func(domain.SessionState){}, m.listeners...)
	m.mu.Unlock()

	if prev != next {
		m.logger.Info("session state changed",
			zap.String("from", prev.String()),
			zap.String("to", next.String()),
		)
	}
	for _, fn := range listeners {
		fn(next)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
