package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/observability"
	"go.uber.org/zap"
)

// PacerConfig sets the delay enforced between consecutive sends.
type PacerConfig struct {
	BaseDelay time.Duration
	// Jitter adds a uniform random delay in [0, Jitter].
	Jitter time.Duration
	// Account keys the optional shared budget.
	Account string
}

// Pacer waits between deliveries. With a RateLimiter it also waits for the
// shared per-account budget, so separate runs on one account stay within it.
type Pacer struct {
	cfg        PacerConfig
	limiter    RateLimiter
	logger     *zap.Logger
	metrics    *observability.Metrics
	randInt63n func(n int64) int64
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewPacer(cfg PacerConfig, limiter RateLimiter, logger *zap.Logger) (*Pacer, error) {
	if cfg.BaseDelay < 0 || cfg.Jitter < 0 {
		return nil, fmt.Errorf("%w: pacing delays must not be negative", domain.ErrConfiguration)
	}
	if cfg.Account == "" {
		cfg.Account = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pacer{
		cfg:        cfg,
		limiter:    limiter,
		logger:     logger,
		randInt63n: rand.Int63n,
		sleep:      sleepWithContext,
	}, nil
}

func (p *Pacer) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Delay returns the next pause: base plus jitter.
func (p *Pacer) Delay() time.Duration {
	delay := p.cfg.BaseDelay
	if p.cfg.Jitter > 0 && p.randInt63n != nil {
		delay += time.Duration(p.randInt63n(int64(p.cfg.Jitter) + 1))
	}
	return delay
}

// Wait blocks for the pacing delay and, when configured, for the shared
// budget. It returns ctx.Err() as soon as ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}

	delay := p.Delay()
	observability.Logger(ctx, p.logger).Debug("pacing before next send", zap.Duration("delay", delay))
	p.metrics.ObservePacingDelay(delay)

	if err := p.sleep(ctx, delay); err != nil {
		return err
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, p.cfg.Account); err != nil {
			return fmt.Errorf("wait for pacing budget: %w", err)
		}
	}
	return nil
}

// Admit spends the shared budget for the first send of a run, which no
// Wait precedes. Without a limiter it returns at once.
func (p *Pacer) Admit(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx, p.cfg.Account); err != nil {
		return fmt.Errorf("wait for pacing budget: %w", err)
	}
	return nil
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
