// Package browser is the browser-automation capability the dispatch engine
// drives: a page that can be navigated, queried with a timeout, typed into
// and photographed.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Driver.Find when the query did not match
// before its timeout.
var ErrNotFound = errors.New("element not found")

// Key is a keyboard action understood by Element.Press.
type Key int

const (
	KeyEnter Key = iota + 1
	KeyShiftEnter
	KeyEscape
)

func (k Key) String() string {
	switch k {
	case KeyEnter:
		return "enter"
	case KeyShiftEnter:
		return "shift+enter"
	case KeyEscape:
		return "escape"
	}
	return "unknown"
}

// Driver is one browser page owned by a run.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Find waits up to timeout for query to match. It returns ErrNotFound
	// when nothing matched in time.
	Find(ctx context.Context, query string, timeout time.Duration) (Element, error)
	// Count returns how many nodes match query right now, without waiting.
	Count(ctx context.Context, query string) (int, error)
	Screenshot(ctx context.Context, path string) error
	Quit() error
}

// Element is a located node of the page.
type Element interface {
	Click(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Press(ctx context.Context, key Key) error
}

// IsXPath reports whether query should be evaluated as XPath rather than
// as a CSS selector.
func IsXPath(query string) bool {
	q := strings.TrimSpace(query)
	return strings.HasPrefix(q, "/") || strings.HasPrefix(q, "(")
}
