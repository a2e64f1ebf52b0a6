package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultBudgetLimit  = 6
	defaultBudgetWindow = time.Minute
	defaultKeyPrefix    = "pacing"
	minBudgetWait       = 10 * time.Millisecond
)

// takeScript spends one unit of the budget stored at KEYS[1] and answers
// {allowed, remaining window in ms}. The window starts with the first
// send; a key that lost its expiry gets it back.
var takeScript = goredis.NewScript(`
local used = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if used == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
if used > tonumber(ARGV[1]) then
  return {0, ttl}
end
return {1, ttl}
`)

var _ ratelimit.RateLimiter = (*SendBudget)(nil)

// BudgetConfig caps how many messages one account may send per window.
type BudgetConfig struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// SendBudget is a per-account send budget kept in Redis, so every
// dispatch process using the same account and Redis shares it. Window
// timing comes from the key's expiry on the server, not local clocks.
type SendBudget struct {
	client *goredis.Client
	cfg    BudgetConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewSendBudget(client *goredis.Client, cfg BudgetConfig) (*SendBudget, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultBudgetLimit
	}
	if cfg.Window < time.Millisecond {
		cfg.Window = defaultBudgetWindow
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}

	return &SendBudget{client: client, cfg: cfg, sleep: sleepWithContext}, nil
}

// Allow spends one send of the account's budget if any is left.
func (b *SendBudget) Allow(ctx context.Context, account string) (bool, error) {
	allowed, _, err := b.take(ctx, account)
	return allowed, err
}

// Wait spends one send, first sleeping out the current window for as long
// as the account has none left.
func (b *SendBudget) Wait(ctx context.Context, account string) error {
	for {
		allowed, retryIn, err := b.take(ctx, account)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if err := b.sleep(ctx, retryIn); err != nil {
			return err
		}
	}
}

func (b *SendBudget) take(ctx context.Context, account string) (bool, time.Duration, error) {
	key, err := b.key(account)
	if err != nil {
		return false, 0, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reply, err := takeScript.Run(ctx, b.client, []string{key}, b.cfg.Limit, b.cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to spend send budget: %w", err)
	}
	if len(reply) != 2 {
		return false, 0, fmt.Errorf("unexpected send budget reply %v", reply)
	}

	retryIn := time.Duration(reply[1]) * time.Millisecond
	if retryIn < minBudgetWait {
		retryIn = minBudgetWait
	}
	return reply[0] == 1, retryIn, nil
}

func (b *SendBudget) key(account string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(account))
	if normalized == "" {
		return "", errors.New("account is required")
	}
	return b.cfg.KeyPrefix + ":" + normalized, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
