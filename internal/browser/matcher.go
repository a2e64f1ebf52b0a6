package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Matcher is one lookup strategy: a query evaluated with its own timeout.
type Matcher struct {
	Name    string        `yaml:"name"`
	Query   string        `yaml:"query"`
	Timeout time.Duration `yaml:"timeout"`
	// Reason labels what a match means; used by error banners.
	Reason string `yaml:"reason,omitempty"`
}

func (m Matcher) String() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Query
}

// WithTimeout returns a copy of matchers where every zero timeout is set to d.
func WithTimeout(matchers []Matcher, d time.Duration) []Matcher {
	out := make([]Matcher, len(matchers))
	for i, m := range matchers {
		if m.Timeout <= 0 {
			m.Timeout = d
		}
		out[i] = m
	}
	return out
}

// OverrideTimeout returns a copy of matchers all evaluated with d.
func OverrideTimeout(matchers []Matcher, d time.Duration) []Matcher {
	out := make([]Matcher, len(matchers))
	for i, m := range matchers {
		m.Timeout = d
		out[i] = m
	}
	return out
}

// ScopeAfter rewrites bubble-relative matchers (queries starting with "./")
// so they only match inside the newest element of container that comes
// after its first n matches. Absolute queries are returned unchanged.
func ScopeAfter(matchers []Matcher, container string, n int) []Matcher {
	scope := fmt.Sprintf("(%s)[position()>%d][last()]", container, n)
	out := make([]Matcher, len(matchers))
	for i, m := range matchers {
		if IsRelative(m.Query) {
			m.Query = scope + strings.TrimPrefix(strings.TrimSpace(m.Query), ".")
		}
		out[i] = m
	}
	return out
}

// IsRelative reports whether query is evaluated against a message bubble
// rather than the whole page.
func IsRelative(query string) bool {
	return strings.HasPrefix(strings.TrimSpace(query), "./")
}

// FirstMatch evaluates matchers in order and returns the first element
// found together with the matcher that found it. It returns ErrNotFound when
// every matcher came back empty, and stops early on any other driver error.
func FirstMatch(ctx context.Context, d Driver, matchers []Matcher) (Element, Matcher, error) {
	if len(matchers) == 0 {
		return nil, Matcher{}, fmt.Errorf("%w: no matchers", ErrNotFound)
	}

	tried := make([]string, 0, len(matchers))
	for _, m := range matchers {
		if err := ctx.Err(); err != nil {
			return nil, Matcher{}, err
		}

		el, err := d.Find(ctx, m.Query, m.Timeout)
		if err == nil {
			return el, m, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, Matcher{}, fmt.Errorf("find %s: %w", m, err)
		}
		tried = append(tried, m.String())
	}

	return nil, Matcher{}, fmt.Errorf("%w: tried %s", ErrNotFound, strings.Join(tried, ", "))
}
