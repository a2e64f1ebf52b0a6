package whatsapp

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/browser"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
)

func newTestSession(t *testing.T, driver *fakeDriver, confirm Confirmation, cfg SessionConfig) (*SessionManager, *fakeClock, *[]domain.SessionState) {
	t.Helper()

	if cfg.EntryURL == "" {
		cfg.EntryURL = "https://web.whatsapp.com"
	}
	if confirm == nil {
		confirm = ConfirmationFunc(func(context.Context) error { return nil })
	}
	m, err := NewSessionManager(driver, testSelectors(), confirm, cfg, nil)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}

	clock := newFakeClock()
	m.now = clock.Now
	m.sleep = clock.Sleep

	var (
		mu     sync.Mutex
		states []domain.SessionState
	)
	m.OnStateChange(func(s domain.SessionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	return m, clock, &states
}

func TestEstablishAlreadyAuthenticated(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver("//auth")
	confirmCalls := 0
	confirm := ConfirmationFunc(func(context.Context) error {
		confirmCalls++
		return nil
	})
	m, _, states := newTestSession(t, driver, confirm, SessionConfig{})

	state, err := m.Establish(context.Background())
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}
	if state != domain.SessionAuthenticated || m.State() != domain.SessionAuthenticated {
		t.Fatalf("state = %s, want Authenticated", state)
	}
	if confirmCalls != 0 {
		t.Fatal("confirmation must not be awaited without a QR code")
	}
	want := []domain.SessionState{domain.SessionUnauthenticated, domain.SessionAuthenticated}
	if !reflect.DeepEqual(*states, want) {
		t.Fatalf("states = %v, want %v", *states, want)
	}
	if len(driver.navigated) != 1 || driver.navigated[0] != "https://web.whatsapp.com" {
		t.Fatalf("navigated = %v", driver.navigated)
	}
}

func TestEstablishAfterScan(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		confirmed bool
	)
	driver := newFakeDriver()
	driver.present = func(q string) bool {
		mu.Lock()
		defer mu.Unlock()
		switch q {
		case "//qr":
			return !confirmed
		case "//auth":
			return confirmed
		}
		return false
	}
	confirm := ConfirmationFunc(func(context.Context) error {
		mu.Lock()
		confirmed = true
		mu.Unlock()
		return nil
	})
	m, _, states := newTestSession(t, driver, confirm, SessionConfig{})

	state, err := m.Establish(context.Background())
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}
	if state != domain.SessionAuthenticated {
		t.Fatalf("state = %s, want Authenticated", state)
	}
	want := []domain.SessionState{
		domain.SessionUnauthenticated,
		domain.SessionAwaitingScan,
		domain.SessionAuthenticated,
	}
	if !reflect.DeepEqual(*states, want) {
		t.Fatalf("states = %v, want %v", *states, want)
	}
}

func TestEstablishStuckAwaitingScan(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver("//qr")
	never := ConfirmationFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m, _, _ := newTestSession(t, driver, never, SessionConfig{PostScanTimeout: 20 * time.Millisecond})

	state, err := m.Establish(context.Background())
	if !errors.Is(err, domain.ErrLoginTimedOut) {
		t.Fatalf("Establish() error = %v, want ErrLoginTimedOut", err)
	}
	if !domain.IsFatal(err) {
		t.Fatal("login timeout must be fatal")
	}
	if state != domain.SessionLoginTimedOut || m.State() != domain.SessionLoginTimedOut {
		t.Fatalf("state = %s, want LoginTimedOut", state)
	}
}

func TestEstablishNoMarkerTimesOut(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver()
	m, clock, _ := newTestSession(t, driver, nil, SessionConfig{ScanTimeout: 10 * time.Second, PollInterval: time.Second})
	start := clock.Now()

	state, err := m.Establish(context.Background())
	if !errors.Is(err, domain.ErrLoginTimedOut) {
		t.Fatalf("Establish() error = %v, want ErrLoginTimedOut", err)
	}
	if state != domain.SessionLoginTimedOut {
		t.Fatalf("state = %s, want LoginTimedOut", state)
	}
	if waited := clock.Now().Sub(start); waited != 10*time.Second {
		t.Fatalf("waited %s, want 10s", waited)
	}
}

func TestEstablishChatListMissingAfterConfirmation(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver("//qr")
	m, _, _ := newTestSession(t, driver, nil, SessionConfig{AuthTimeout: 3 * time.Second})

	_, err := m.Establish(context.Background())
	if !errors.Is(err, domain.ErrLoginTimedOut) {
		t.Fatalf("Establish() error = %v, want ErrLoginTimedOut", err)
	}
}

func TestEstablishConfirmationSourceFails(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver("//qr")
	broken := ConfirmationFunc(func(context.Context) error { return ErrNoConfirmation })
	m, _, _ := newTestSession(t, driver, broken, SessionConfig{})

	_, err := m.Establish(context.Background())
	if !errors.Is(err, domain.ErrLoginTimedOut) {
		t.Fatalf("Establish() error = %v, want ErrLoginTimedOut", err)
	}
}

func TestEstablishNavigationFailureIsConfigurationError(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver("//auth")
	driver.navigateErr = errors.New("browser crashed")
	m, _, _ := newTestSession(t, driver, nil, SessionConfig{})

	_, err := m.Establish(context.Background())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Establish() error = %v, want ErrConfiguration", err)
	}
}

func TestEstablishCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, _, _ := newTestSession(t, newFakeDriver(), nil, SessionConfig{})
	_, err := m.Establish(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Establish() error = %v, want context.Canceled", err)
	}
	if domain.IsFatal(err) {
		t.Fatal("cancellation is not a login failure")
	}
}

func TestDismissDialogs(t *testing.T) {
	t.Parallel()

	t.Run("nothing to dismiss retries every round", func(t *testing.T) {
		t.Parallel()

		m, clock, _ := newTestSession(t, newFakeDriver(), nil, SessionConfig{DismissRounds: 3, DismissPause: time.Second})
		start := clock.Now()

		if m.DismissDialogs(context.Background()) {
			t.Fatal("DismissDialogs() = true, want false")
		}
		if waited := clock.Now().Sub(start); waited != 2*time.Second {
			t.Fatalf("paused %s, want 2s between 3 rounds", waited)
		}
	})

	t.Run("dialog dismissed once", func(t *testing.T) {
		t.Parallel()

		var (
			mu   sync.Mutex
			open = true
		)
		driver := newFakeDriver()
		driver.present = func(q string) bool {
			mu.Lock()
			defer mu.Unlock()
			return q == "//dismiss" && open
		}
		m, _, _ := newTestSession(t, driver, nil, SessionConfig{})
		m.driver = &closingDriver{fakeDriver: driver, onClick: func() {
			mu.Lock()
			open = false
			mu.Unlock()
		}}

		if !m.DismissDialogs(context.Background()) {
			t.Fatal("DismissDialogs() = false, want true")
		}
	})
}

// closingDriver runs onClick whenever an element it found is clicked.
type closingDriver struct {
	*fakeDriver
	onClick func()
}

func (d *closingDriver) Find(ctx context.Context, query string, timeout time.Duration) (browser.Element, error) {
	el, err := d.fakeDriver.Find(ctx, query, timeout)
	if err != nil {
		return nil, err
	}
	return &closingElement{Element: el, onClick: d.onClick}, nil
}

type closingElement struct {
	browser.Element
	onClick func()
}

func (e *closingElement) Click(ctx context.Context) error {
	if err := e.Element.Click(ctx); err != nil {
		return err
	}
	e.onClick()
	return nil
}

func TestNewSessionManagerValidates(t *testing.T) {
	t.Parallel()

	confirm := NewSignalConfirmation()
	if _, err := NewSessionManager(nil, testSelectors(), confirm, SessionConfig{EntryURL: "x"}, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("nil driver error = %v", err)
	}
	if _, err := NewSessionManager(newFakeDriver(), testSelectors(), nil, SessionConfig{EntryURL: "x"}, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("nil confirmation error = %v", err)
	}
	if _, err := NewSessionManager(newFakeDriver(), testSelectors(), confirm, SessionConfig{}, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("missing url error = %v", err)
	}
}
