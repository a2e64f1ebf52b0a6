package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/observability"
	"go.uber.org/zap"
)

const (
	SMSChannelName = "sms"

	defaultWebhookTimeout = 10 * time.Second
	maxRetryDelay         = 60 * time.Second
	baseRetryDelay        = time.Second
	maxRetryJitterMillis  = 250
)

type webhookRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Content string `json:"content"`
}

// WebhookChannel sends SMS messages through an HTTP gateway that accepts
// webhook.site-style JSON posts.
type WebhookChannel struct {
	client     *resty.Client
	endpoint   string
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
	randIntn   func(n int) int
	sleep      func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	opened bool
}

func NewWebhookChannel(endpoint string, maxRetries int, logger *zap.Logger) (*WebhookChannel, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookChannelWithClient(endpoint, client, maxRetries, logger)
}

func NewWebhookChannelWithClient(endpoint string, client *resty.Client, maxRetries int, logger *zap.Logger) (*WebhookChannel, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("%w: sms webhook endpoint is required", domain.ErrConfiguration)
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("%w: invalid sms webhook endpoint: %v", domain.ErrConfiguration, err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: resty client is required", domain.ErrConfiguration)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookChannel{
		client:     client,
		endpoint:   trimmedEndpoint,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
		randIntn:   rand.Intn,
		sleep:      sleepWithContext,
	}, nil
}

func (c *WebhookChannel) Name() string { return SMSChannelName }

func (c *WebhookChannel) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	c.logger.Info("sms channel ready", zap.String("endpoint", c.endpoint))
	return nil
}

func (c *WebhookChannel) Close() error {
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return nil
}

// SessionState reports Authenticated while the channel is open; the gateway
// needs no login.
func (c *WebhookChannel) SessionState() domain.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.opened {
		return domain.SessionAuthenticated
	}
	return domain.SessionUnauthenticated
}

// Send posts the message, retrying transient gateway failures with
// exponential backoff. A 2xx answer counts as Sent.
func (c *WebhookChannel) Send(ctx context.Context, address domain.Address, message string) domain.DeliveryOutcome {
	logger := observability.Logger(ctx, c.logger).With(zap.String("address", address.String()))

	if !address.IsCanonical() {
		return domain.NewOutcome(c.now(), address.String(), domain.DeliveryStatusError,
			fmt.Sprintf("%v: %q is not a canonical address", domain.ErrInvalidPhone, address.String()))
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		resp, err := c.post(ctx, address, message)
		if err == nil {
			logger.Info("sms accepted by gateway",
				zap.Int("statusCode", resp.StatusCode),
				zap.String("messageId", resp.MessageID),
				zap.Int("attempt", attempt),
			)
			detail := "accepted by gateway"
			if resp.MessageID != "" {
				detail = fmt.Sprintf("accepted by gateway (id %s)", resp.MessageID)
			}
			return domain.NewOutcome(c.now(), address.String(), domain.DeliveryStatusSent, detail)
		}

		lastErr = err
		if !IsTransient(err) || attempt > c.maxRetries {
			break
		}

		delay := c.computeRetryDelay(attempt)
		logger.Warn("sms gateway failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retryIn", delay),
			zap.Error(err),
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			lastErr = fmt.Errorf("retry aborted: %w", sleepErr)
			break
		}
	}

	logger.Warn("sms delivery failed", zap.Error(lastErr))
	return domain.ErrorOutcome(c.now(), address.String(), lastErr)
}

func (c *WebhookChannel) post(ctx context.Context, address domain.Address, message string) (*GatewayResponse, error) {
	reqBody := webhookRequest{
		To:      address.String(),
		Channel: SMSChannelName,
		Content: message,
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(c.endpoint)
	if err != nil {
		return nil, &GatewayError{
			Message:   "gateway request failed",
			Retryable: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &GatewayError{
			Message:   "gateway returned empty response",
			Retryable: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &GatewayResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  gatewayMessageID(response),
		}, nil
	}

	return nil, &GatewayError{
		StatusCode: statusCode,
		Message:    gatewayErrorMessage(statusCode, responseBody),
		Retryable:  isTransientHTTPStatus(statusCode),
	}
}

func (c *WebhookChannel) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	jitterMillis := 0
	if c.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = c.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func gatewayMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Message-ID", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
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
