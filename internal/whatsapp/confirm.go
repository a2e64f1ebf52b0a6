package whatsapp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNoConfirmation is returned by a Confirmation whose source can no longer
// deliver a signal.
var ErrNoConfirmation = errors.New("scan confirmation unavailable")

// Confirmation is the operator action that ends the AwaitingScan suspend
// point. Await blocks until the operator confirms or ctx is done.
type Confirmation interface {
	Await(ctx context.Context) error
}

// ConfirmationFunc adapts a function to Confirmation.
type ConfirmationFunc func(ctx context.Context) error

func (f ConfirmationFunc) Await(ctx context.Context) error { return f(ctx) }

// StdinConfirmation waits for the operator to press Enter. One goroutine
// reads lines for the life of the confirmation; a line typed while nobody
// waits is kept for the next Await. A read pending when the process exits
// is left blocked.
type StdinConfirmation struct {
	in     io.Reader
	prompt io.Writer
	text   string

	start   sync.Once
	lines   chan struct{}
	readErr error
}

func NewStdinConfirmation(in io.Reader, prompt io.Writer, text string) *StdinConfirmation {
	return &StdinConfirmation{in: in, prompt: prompt, text: text, lines: make(chan struct{})}
}

func (c *StdinConfirmation) Await(ctx context.Context) error {
	if c.prompt != nil && c.text != "" {
		fmt.Fprintln(c.prompt, c.text)
	}
	c.start.Do(func() { go c.readLines() })

	select {
	case _, ok := <-c.lines:
		if !ok {
			return c.readErr
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLines closes lines after storing readErr once input ends.
func (c *StdinConfirmation) readLines() {
	r := bufio.NewReader(c.in)
	for {
		_, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: input closed", ErrNoConfirmation)
			}
			c.readErr = err
			close(c.lines)
			return
		}
		c.lines <- struct{}{}
	}
}

// SignalConfirmation is confirmed from another goroutine, e.g. an HTTP
// handler. Signals sent while nobody waits are kept until the next Await.
type SignalConfirmation struct {
	ch chan struct{}
}

func NewSignalConfirmation() *SignalConfirmation {
	return &SignalConfirmation{ch: make(chan struct{}, 1)}
}

// Signal confirms the scan. It never blocks; repeated signals collapse.
func (c *SignalConfirmation) Signal() {
	select {
	case c.ch <- struct{}{}:
	default:
	}
}

func (c *SignalConfirmation) Await(ctx context.Context) error {
	select {
	case <-c.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FirstConfirmation returns a Confirmation satisfied by whichever source
// confirms first. Sources that fail are ignored while others remain.
func FirstConfirmation(sources ...Confirmation) Confirmation {
	return ConfirmationFunc(func(ctx context.Context) error {
		if len(sources) == 0 {
			return ErrNoConfirmation
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		results := make(chan error, len(sources))
		for _, src := range sources {
			go func(src Confirmation) {
				results <- src.Await(ctx)
			}(src)
		}

		var lastErr error
		for range sources {
			err := <-results
			if err == nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			lastErr = err
		}
		return lastErr
	})
}
