package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/browser"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

type fakeDriver struct {
	mu sync.Mutex

	// present decides whether a query matches right now.
	present       func(query string) bool
	count         func(query string) (int, error)
	navigateErr   error
	screenshotErr error
	clickErr      map[string]error

	navigated   []string
	actions     []string
	screenshots []string
	quits       int
}

func newFakeDriver(present ...string) *fakeDriver {
	set := make(map[string]bool, len(present))
	for _, q := range present {
		set[q] = true
	}
	return &fakeDriver{
		present:  func(q string) bool { return set[q] },
		clickErr: map[string]error{},
	}
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigated = append(d.navigated, url)
	return d.navigateErr
}

func (d *fakeDriver) Find(ctx context.Context, query string, _ time.Duration) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.present != nil && d.present(query) {
		return &fakeElement{driver: d, query: query}, nil
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, query)
}

func (d *fakeDriver) Count(ctx context.Context, query string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if d.count == nil {
		return 0, nil
	}
	return d.count(query)
}

func (d *fakeDriver) Screenshot(_ context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screenshots = append(d.screenshots, path)
	return d.screenshotErr
}

func (d *fakeDriver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quits++
	return nil
}

func (d *fakeDriver) record(action string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, action)
}

func (d *fakeDriver) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}

type fakeElement struct {
	driver *fakeDriver
	query  string
}

func (e *fakeElement) Click(context.Context) error {
	e.driver.record("click " + e.query)
	e.driver.mu.Lock()
	err := e.driver.clickErr[e.query]
	e.driver.mu.Unlock()
	return err
}

func (e *fakeElement) Type(_ context.Context, text string) error {
	e.driver.record("type " + text)
	return nil
}

func (e *fakeElement) Press(_ context.Context, key browser.Key) error {
	e.driver.record("press " + key.String())
	return nil
}

func testSelectors() browser.Selectors {
	return browser.Selectors{
		Authenticated: []browser.Matcher{{Name: "auth", Query: "//auth"}},
		LoginQR:       []browser.Matcher{{Name: "qr", Query: "//qr"}},
		Dismiss:       []browser.Matcher{{Name: "dismiss", Query: "//dismiss"}},
		MessageInput: []browser.Matcher{
			{Name: "primary", Query: "//input-primary"},
			{Name: "alternative", Query: "//input-alt"},
		},
		SendButton: []browser.Matcher{{Name: "send", Query: "//send"}},
		Delivered:  []browser.Matcher{{Name: "delivered", Query: "//delivered"}},
		Sent:       []browser.Matcher{{Name: "sent", Query: "//sent"}},
		Queued:     []browser.Matcher{{Name: "queued", Query: "//queued"}},
		ErrorBanners: []browser.Matcher{
			{Name: "invalid", Query: "//invalid", Reason: "invalid phone number"},
		},
	}
}

type fakeDismisser struct {
	calls int
}

func (f *fakeDismisser) DismissDialogs(context.Context) bool {
	f.calls++
	return false
}
