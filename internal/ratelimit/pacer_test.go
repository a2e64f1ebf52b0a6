package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/domain"
)

type fakeLimiter struct {
	waitFn func(ctx context.Context, key string) error
	keys   []string
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (f *fakeLimiter) Wait(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

func TestPacerDelay(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		cfg    PacerConfig
		random int64
		want   time.Duration
	}{
		{name: "fixed", cfg: PacerConfig{BaseDelay: 10 * time.Second}, want: 10 * time.Second},
		{name: "jitter low end", cfg: PacerConfig{BaseDelay: 10 * time.Second, Jitter: 2 * time.Second}, random: 0, want: 10 * time.Second},
		{name: "jitter high end", cfg: PacerConfig{BaseDelay: 10 * time.Second, Jitter: 2 * time.Second}, random: int64(2 * time.Second), want: 12 * time.Second},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p, err := NewPacer(tc.cfg, nil, nil)
			if err != nil {
				t.Fatalf("NewPacer() error = %v", err)
			}
			p.randInt63n = func(n int64) int64 {
				if n != int64(tc.cfg.Jitter)+1 {
					t.Errorf("randInt63n arg = %d, want %d", n, int64(tc.cfg.Jitter)+1)
				}
				return tc.random
			}

			if got := p.Delay(); got != tc.want {
				t.Fatalf("Delay() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestPacerWaitSleepsThenWaitsForBudget(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{}
	p, err := NewPacer(PacerConfig{BaseDelay: 10 * time.Second, Account: "ventas"}, limiter, nil)
	if err != nil {
		t.Fatalf("NewPacer() error = %v", err)
	}
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(slept) != 1 || slept[0] != 10*time.Second {
		t.Fatalf("slept = %v, want [10s]", slept)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "ventas" {
		t.Fatalf("limiter keys = %v, want [ventas]", limiter.keys)
	}
}

func TestPacerWaitStopsOnCancel(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{}
	p, err := NewPacer(PacerConfig{BaseDelay: time.Hour}, limiter, nil)
	if err != nil {
		t.Fatalf("NewPacer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
	if len(limiter.keys) != 0 {
		t.Fatal("budget must not be consulted after cancellation")
	}
}

func TestPacerWaitBudgetError(t *testing.T) {
	t.Parallel()

	boom := errors.New("redis down")
	limiter := &fakeLimiter{waitFn: func(context.Context, string) error { return boom }}
	p, err := NewPacer(PacerConfig{}, limiter, nil)
	if err != nil {
		t.Fatalf("NewPacer() error = %v", err)
	}

	if err := p.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Wait() error = %v, want %v", err, boom)
	}
}

func TestNewPacerRejectsNegativeDelays(t *testing.T) {
	t.Parallel()

	if _, err := NewPacer(PacerConfig{BaseDelay: -time.Second}, nil, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("NewPacer() error = %v, want ErrConfiguration", err)
	}
}

func TestNilPacerWait(t *testing.T) {
	t.Parallel()

	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestPacerAdmitSpendsBudgetWithoutDelay(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{}
	p, err := NewPacer(PacerConfig{BaseDelay: 10 * time.Second}, limiter, nil)
	if err != nil {
		t.Fatalf("NewPacer() error = %v", err)
	}
	p.sleep = func(context.Context, time.Duration) error {
		t.Fatal("Admit() should not sleep")
		return nil
	}

	if err := p.Admit(context.Background()); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "default" {
		t.Fatalf("limiter keys = %v, want [default]", limiter.keys)
	}

	unmetered, err := NewPacer(PacerConfig{}, nil, nil)
	if err != nil {
		t.Fatalf("NewPacer() error = %v", err)
	}
	if err := unmetered.Admit(context.Background()); err != nil {
		t.Fatalf("Admit() without limiter error = %v", err)
	}
}
