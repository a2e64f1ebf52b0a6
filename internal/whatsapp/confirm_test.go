package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestStdinConfirmation(t *testing.T) {
	t.Parallel()

	var prompt bytes.Buffer
	c := NewStdinConfirmation(strings.NewReader("\n"), &prompt, "Press Enter after scanning the QR code")

	if err := c.Await(context.Background()); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if !strings.Contains(prompt.String(), "Press Enter") {
		t.Fatalf("prompt = %q", prompt.String())
	}
}

func TestStdinConfirmationClosedInput(t *testing.T) {
	t.Parallel()

	c := NewStdinConfirmation(strings.NewReader(""), nil, "")
	if err := c.Await(context.Background()); !errors.Is(err, ErrNoConfirmation) {
		t.Fatalf("Await() error = %v, want ErrNoConfirmation", err)
	}
}

func TestStdinConfirmationHonoursContext(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewStdinConfirmation(pr, nil, "")
	if err := c.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Await() error = %v, want DeadlineExceeded", err)
	}
}

func TestStdinConfirmationSharesReadAcrossAwaits(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	c := NewStdinConfirmation(pr, nil, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first Await() error = %v, want DeadlineExceeded", err)
	}

	go func() { _, _ = pw.Write([]byte("\n")) }()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := c.Await(ctx2); err != nil {
		t.Fatalf("second Await() error = %v, want the line read by the shared reader", err)
	}
}

func TestStdinConfirmationClosedInputStaysClosed(t *testing.T) {
	t.Parallel()

	c := NewStdinConfirmation(strings.NewReader("\n"), nil, "")
	if err := c.Await(context.Background()); err != nil {
		t.Fatalf("first Await() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Await(context.Background()); !errors.Is(err, ErrNoConfirmation) {
			t.Fatalf("Await() after EOF error = %v, want ErrNoConfirmation", err)
		}
	}
}

func TestSignalConfirmation(t *testing.T) {
	t.Parallel()

	c := NewSignalConfirmation()
	c.Signal()
	c.Signal()

	if err := c.Await(context.Background()); err != nil {
		t.Fatalf("Await() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Await() error = %v, want DeadlineExceeded (signals collapse)", err)
	}
}

func TestFirstConfirmation(t *testing.T) {
	t.Parallel()

	t.Run("first source wins", func(t *testing.T) {
		t.Parallel()

		signal := NewSignalConfirmation()
		blocked := ConfirmationFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		signal.Signal()

		if err := FirstConfirmation(blocked, signal).Await(context.Background()); err != nil {
			t.Fatalf("Await() error = %v", err)
		}
	})

	t.Run("failed source does not end the wait", func(t *testing.T) {
		t.Parallel()

		broken := ConfirmationFunc(func(context.Context) error { return ErrNoConfirmation })
		signal := NewSignalConfirmation()
		go func() {
			time.Sleep(10 * time.Millisecond)
			signal.Signal()
		}()

		if err := FirstConfirmation(broken, signal).Await(context.Background()); err != nil {
			t.Fatalf("Await() error = %v", err)
		}
	})

	t.Run("all sources fail", func(t *testing.T) {
		t.Parallel()

		broken := ConfirmationFunc(func(context.Context) error { return ErrNoConfirmation })
		if err := FirstConfirmation(broken, broken).Await(context.Background()); !errors.Is(err, ErrNoConfirmation) {
			t.Fatalf("Await() error = %v, want ErrNoConfirmation", err)
		}
	})

	t.Run("no sources", func(t *testing.T) {
		t.Parallel()

		if err := FirstConfirmation().Await(context.Background()); !errors.Is(err, ErrNoConfirmation) {
			t.Fatalf("Await() error = %v, want ErrNoConfirmation", err)
		}
	})
}
