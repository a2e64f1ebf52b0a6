package browser

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type fakeElement struct {
	query string
}

func (e *fakeElement) Click(context.Context) error        { return nil }
func (e *fakeElement) Type(context.Context, string) error { return nil }
func (e *fakeElement) Press(context.Context, Key) error   { return nil }

type fakeDriver struct {
	mu      sync.Mutex
	present map[string]bool
	fail    map[string]error
	queries []string
}

func newFakeDriver(present ...string) *fakeDriver {
	d := &fakeDriver{present: map[string]bool{}, fail: map[string]error{}}
	for _, q := range present {
		d.present[q] = true
	}
	return d
}

func (d *fakeDriver) Navigate(context.Context, string) error { return nil }

func (d *fakeDriver) Find(_ context.Context, query string, _ time.Duration) (Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = append(d.queries, query)
	if err, ok := d.fail[query]; ok {
		return nil, err
	}
	if d.present[query] {
		return &fakeElement{query: query}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, query)
}

func (d *fakeDriver) Count(_ context.Context, query string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.present[query] {
		return 1, nil
	}
	return 0, nil
}

func (d *fakeDriver) Screenshot(context.Context, string) error { return nil }
func (d *fakeDriver) Quit() error                              { return nil }
