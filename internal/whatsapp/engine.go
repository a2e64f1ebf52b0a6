package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/browser"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/observability"
	"go.uber.org/zap"
)

const (
	ChannelName = "whatsapp"

	DefaultBaseURL = "https://web.whatsapp.com"

	defaultInputTimeout        = 15 * time.Second
	defaultStabilizeDelay      = 7 * time.Second
	defaultFallbackFindTimeout = 3 * time.Second
	defaultConfirmTimeout      = 10 * time.Second
	defaultProbeTimeout        = 200 * time.Millisecond

	screenshotTimeFormat = "20060102-150405"

	detailNoConfirmation = "no confirmation detected"
)

// EngineConfig bounds every wait of a single delivery.
type EngineConfig struct {
	BaseURL       string
	ScreenshotDir string
	// InputTimeout bounds the primary wait for the message input.
	InputTimeout time.Duration
	// StabilizeDelay is the pause before the fallback path re-locates the input.
	StabilizeDelay time.Duration
	// FallbackFindTimeout is the budget of each fallback query.
	FallbackFindTimeout time.Duration
	ConfirmTimeout      time.Duration
	PollInterval        time.Duration
	// ProbeTimeout is the budget of one indicator query inside a poll.
	ProbeTimeout time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.InputTimeout <= 0 {
		c.InputTimeout = defaultInputTimeout
	}
	if c.StabilizeDelay < 0 {
		c.StabilizeDelay = defaultStabilizeDelay
	}
	if c.FallbackFindTimeout <= 0 {
		c.FallbackFindTimeout = defaultFallbackFindTimeout
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = defaultConfirmTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	return c
}

// errOutgoingUnknown means the chat could not be inspected before submitting,
// so no later status glyph could be attributed to this send.
var errOutgoingUnknown = errors.New("cannot read outgoing messages")

// DialogDismisser clears interstitial dialogs before the fallback path.
type DialogDismisser interface {
	DismissDialogs(ctx context.Context) bool
}

type indicator int

const (
	indicatorNone indicator = iota
	indicatorDelivered
	indicatorSent
	indicatorQueued
	indicatorError
)

// DeliveryEngine sends one message to one chat at a time through an
// authenticated client and classifies what happened.
type DeliveryEngine struct {
	driver    browser.Driver
	selectors browser.Selectors
	dismisser DialogDismisser
	cfg       EngineConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewDeliveryEngine(
	driver browser.Driver,
	selectors browser.Selectors,
	dismisser DialogDismisser,
	cfg EngineConfig,
	logger *zap.Logger,
) (*DeliveryEngine, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: browser driver is required", domain.ErrConfiguration)
	}
	if len(selectors.MessageInput) == 0 {
		return nil, fmt.Errorf("%w: no message input selectors", domain.ErrConfiguration)
	}
	if selectors.OutgoingMessage == "" {
		for _, list := range [][]browser.Matcher{selectors.Delivered, selectors.Sent, selectors.Queued, selectors.ErrorBanners} {
			for _, m := range list {
				if browser.IsRelative(m.Query) {
					return nil, fmt.Errorf("%w: matcher %s needs an outgoing message query", domain.ErrConfiguration, m)
				}
			}
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryEngine{
		driver:    driver,
		selectors: selectors,
		dismisser: dismisser,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
		sleep:     sleepWithContext,
	}, nil
}

func (e *DeliveryEngine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Send delivers message to address and never fails: every failure path is
// an outcome with status Error.
func (e *DeliveryEngine) Send(ctx context.Context, address domain.Address, message string) domain.DeliveryOutcome {
	logger := observability.Logger(ctx, e.logger).With(zap.String("address", address.String()))

	if !address.IsCanonical() {
		return domain.NewOutcome(e.now(), address.String(), domain.DeliveryStatusError,
			fmt.Sprintf("%v: %q is not a canonical address", domain.ErrInvalidPhone, address.String()))
	}
	if strings.TrimSpace(message) == "" {
		return domain.NewOutcome(e.now(), address.String(), domain.DeliveryStatusError, "empty message")
	}

	if err := e.driver.Navigate(ctx, e.ChatURL(address)); err != nil {
		return e.fail(ctx, logger, address, fmt.Sprintf("could not open chat: %v", err))
	}

	sentBefore, err := e.sendPrimary(ctx, message)
	if err != nil {
		if errors.Is(err, errOutgoingUnknown) {
			return e.fail(ctx, logger, address, err.Error())
		}
		logger.Warn("primary send path failed", zap.Error(err))

		if reason, ok := e.errorBanner(ctx, pageMatchers(e.selectors.ErrorBanners)); ok {
			return e.fail(ctx, logger, address, reason)
		}

		e.metrics.IncFallback(ChannelName)
		sentBefore, err = e.sendFallback(ctx, logger, message)
		if errors.Is(err, errOutgoingUnknown) {
			return e.fail(ctx, logger, address, err.Error())
		}
		if err != nil {
			return e.fail(ctx, logger, address, fmt.Sprintf("%v: %v", domain.ErrElementNotFound, err))
		}
	}

	return e.awaitConfirmation(ctx, logger, address, sentBefore)
}

// ChatURL is the deep link opening a chat with address.
func (e *DeliveryEngine) ChatURL(address domain.Address) string {
	return strings.TrimRight(e.cfg.BaseURL, "/") + "/send?phone=" + address.Digits()
}

// sendPrimary and sendFallback return how many outgoing messages the chat
// showed right before the message was submitted.
func (e *DeliveryEngine) sendPrimary(ctx context.Context, message string) (int, error) {
	primary := browser.WithTimeout(e.selectors.MessageInput[:1], e.cfg.InputTimeout)
	input, _, err := browser.FirstMatch(ctx, e.driver, primary)
	if err != nil {
		return 0, fmt.Errorf("message input: %w", err)
	}
	if err := compose(ctx, input, message); err != nil {
		return 0, err
	}
	sentBefore, err := e.countOutgoing(ctx)
	if err != nil {
		return 0, err
	}
	if err := input.Press(ctx, browser.KeyEnter); err != nil {
		return 0, fmt.Errorf("press enter: %w", err)
	}
	return sentBefore, nil
}

func (e *DeliveryEngine) sendFallback(ctx context.Context, logger *zap.Logger, message string) (int, error) {
	if e.dismisser != nil {
		e.dismisser.DismissDialogs(ctx)
	}
	if err := e.sleep(ctx, e.cfg.StabilizeDelay); err != nil {
		return 0, err
	}

	alternatives := browser.OverrideTimeout(e.selectors.MessageInput, e.cfg.FallbackFindTimeout)
	input, matched, err := browser.FirstMatch(ctx, e.driver, alternatives)
	if err != nil {
		return 0, fmt.Errorf("message input: %w", err)
	}
	logger.Info("message input located by fallback", zap.String("matcher", matched.String()))

	if err := compose(ctx, input, message); err != nil {
		return 0, err
	}
	sentBefore, err := e.countOutgoing(ctx)
	if err != nil {
		return 0, err
	}

	if len(e.selectors.SendButton) > 0 {
		buttons := browser.OverrideTimeout(e.selectors.SendButton, e.cfg.FallbackFindTimeout)
		button, _, err := browser.FirstMatch(ctx, e.driver, buttons)
		if err == nil {
			if clickErr := button.Click(ctx); clickErr == nil {
				return sentBefore, nil
			}
		}
	}

	if err := input.Press(ctx, browser.KeyEnter); err != nil {
		return 0, fmt.Errorf("press enter: %w", err)
	}
	return sentBefore, nil
}

func (e *DeliveryEngine) countOutgoing(ctx context.Context) (int, error) {
	if e.selectors.OutgoingMessage == "" {
		return 0, nil
	}
	n, err := e.driver.Count(ctx, e.selectors.OutgoingMessage)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errOutgoingUnknown, err)
	}
	return n, nil
}

// compose focuses the input and types message line by line, keeping line
// breaks inside the one message.
func compose(ctx context.Context, input browser.Element, message string) error {
	if err := input.Click(ctx); err != nil {
		return fmt.Errorf("focus input: %w", err)
	}

	text := strings.Trim(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			if err := input.Press(ctx, browser.KeyShiftEnter); err != nil {
				return fmt.Errorf("line break: %w", err)
			}
		}
		if line == "" {
			continue
		}
		if err := input.Type(ctx, line); err != nil {
			return fmt.Errorf("type message: %w", err)
		}
	}
	return nil
}

// awaitConfirmation polls for status glyphs on outgoing messages newer than
// the first sentBefore, so ticks of earlier messages never count for this send.
func (e *DeliveryEngine) awaitConfirmation(ctx context.Context, logger *zap.Logger, address domain.Address, sentBefore int) domain.DeliveryOutcome {
	scoped := e.selectors
	scoped.Delivered = browser.ScopeAfter(e.selectors.Delivered, e.selectors.OutgoingMessage, sentBefore)
	scoped.Sent = browser.ScopeAfter(e.selectors.Sent, e.selectors.OutgoingMessage, sentBefore)
	scoped.Queued = browser.ScopeAfter(e.selectors.Queued, e.selectors.OutgoingMessage, sentBefore)
	scoped.ErrorBanners = browser.ScopeAfter(e.selectors.ErrorBanners, e.selectors.OutgoingMessage, sentBefore)

	deadline := e.now().Add(e.cfg.ConfirmTimeout)
	queued := false

	for {
		found, reason := e.checkIndicators(ctx, scoped)
		switch found {
		case indicatorDelivered:
			return e.succeed(logger, address, domain.DeliveryStatusDelivered, "delivered")
		case indicatorSent:
			return e.succeed(logger, address, domain.DeliveryStatusSent, "sent, not yet delivered")
		case indicatorError:
			return e.fail(ctx, logger, address, reason)
		case indicatorQueued:
			queued = true
		}

		if !e.now().Before(deadline) {
			break
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			break
		}
	}

	if queued {
		logger.Info("message still queued at confirmation deadline")
		return domain.NewOutcome(e.now(), address.String(), domain.DeliveryStatusQueued, "queued, not acknowledged")
	}

	logger.Warn("delivery status unknown", zap.Error(domain.ErrUnknownDeliveryStatus))
	return e.fail(ctx, logger, address, detailNoConfirmation)
}

// checkIndicators evaluates one poll in priority order and returns the
// first indicator present.
func (e *DeliveryEngine) checkIndicators(ctx context.Context, s browser.Selectors) (indicator, string) {
	ordered := []struct {
		kind     indicator
		matchers []browser.Matcher
	}{
		{kind: indicatorDelivered, matchers: s.Delivered},
		{kind: indicatorSent, matchers: s.Sent},
		{kind: indicatorQueued, matchers: s.Queued},
	}
	for _, o := range ordered {
		if e.present(ctx, o.matchers) {
			return o.kind, ""
		}
	}
	if reason, ok := e.errorBanner(ctx, s.ErrorBanners); ok {
		return indicatorError, reason
	}
	return indicatorNone, ""
}

func (e *DeliveryEngine) errorBanner(ctx context.Context, matchers []browser.Matcher) (string, bool) {
	if len(matchers) == 0 {
		return "", false
	}
	banners := browser.OverrideTimeout(matchers, e.cfg.ProbeTimeout)
	_, matched, err := browser.FirstMatch(ctx, e.driver, banners)
	if err != nil {
		return "", false
	}
	if matched.Reason != "" {
		return matched.Reason, true
	}
	return "send failed: " + matched.String(), true
}

// pageMatchers drops matchers tied to an outgoing message.
func pageMatchers(matchers []browser.Matcher) []browser.Matcher {
	out := make([]browser.Matcher, 0, len(matchers))
	for _, m := range matchers {
		if !browser.IsRelative(m.Query) {
			out = append(out, m)
		}
	}
	return out
}

func (e *DeliveryEngine) present(ctx context.Context, matchers []browser.Matcher) bool {
	if len(matchers) == 0 {
		return false
	}
	_, _, err := browser.FirstMatch(ctx, e.driver, browser.OverrideTimeout(matchers, e.cfg.ProbeTimeout))
	return err == nil
}

func (e *DeliveryEngine) succeed(logger *zap.Logger, address domain.Address, status domain.DeliveryStatus, detail string) domain.DeliveryOutcome {
	logger.Info("message confirmed", zap.String("status", status.String()))
	return domain.NewOutcome(e.now(), address.String(), status, detail)
}

func (e *DeliveryEngine) fail(ctx context.Context, logger *zap.Logger, address domain.Address, detail string) domain.DeliveryOutcome {
	at := e.now()
	fields := []zap.Field{zap.String("detail", detail)}
	if path, err := e.screenshot(ctx, address, at); err != nil {
		fields = append(fields, zap.NamedError("screenshotError", err))
	} else if path != "" {
		fields = append(fields, zap.String("screenshot", path))
	}
	logger.Warn("delivery failed", fields...)

	return domain.NewOutcome(at, address.String(), domain.DeliveryStatusError, detail)
}

func (e *DeliveryEngine) screenshot(ctx context.Context, address domain.Address, at time.Time) (string, error) {
	if e.cfg.ScreenshotDir == "" {
		return "", nil
	}
	name := fmt.Sprintf("%s_%s.png", address.Digits(), at.Format(screenshotTimeFormat))
	path := filepath.Join(e.cfg.ScreenshotDir, name)
	if err := e.driver.Screenshot(ctx, path); err != nil {
		return "", fmt.Errorf("screenshot %s: %w", path, err)
	}
	return path, nil
}
