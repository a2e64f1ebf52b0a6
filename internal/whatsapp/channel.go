package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/browser"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/observability"
	"go.uber.org/zap"
)

// LaunchFunc starts the browser a channel drives.
type LaunchFunc func(ctx context.Context) (browser.Driver, error)

// RodLauncher launches a go-rod controlled browser.
func RodLauncher(cfg browser.RodConfig, logger *zap.Logger) LaunchFunc {
	return func(ctx context.Context) (browser.Driver, error) {
		return browser.LaunchRod(ctx, cfg, logger)
	}
}

// ChannelConfig groups what a WhatsApp channel needs for one run.
type ChannelConfig struct {
	Selectors browser.Selectors
	Session   SessionConfig
	Engine    EngineConfig
}

// Channel delivers messages through WhatsApp Web. The browser is acquired
// by Open and released by Close.
type Channel struct {
	launch  LaunchFunc
	confirm Confirmation
	cfg     ChannelConfig
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	driver  browser.Driver
	session *SessionManager
	engine  *DeliveryEngine
}

func NewChannel(launch LaunchFunc, confirm Confirmation, cfg ChannelConfig, logger *zap.Logger) (*Channel, error) {
	if launch == nil {
		return nil, fmt.Errorf("%w: browser launcher is required", domain.ErrConfiguration)
	}
	if confirm == nil {
		return nil, fmt.Errorf("%w: scan confirmation source is required", domain.ErrConfiguration)
	}
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if cfg.Session.EntryURL == "" {
		cfg.Session.EntryURL = cfg.Engine.BaseURL
	}
	if cfg.Session.EntryURL == "" {
		cfg.Session.EntryURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Channel{
		launch:  launch,
		confirm: confirm,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (c *Channel) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

func (c *Channel) Name() string { return ChannelName }

// Open launches the browser and blocks until the session is authenticated.
// On failure the browser stays attached so Close can release it.
func (c *Channel) Open(ctx context.Context) error {
	logger := observability.Logger(ctx, c.logger)

	driver, err := c.launch(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	c.mu.Lock()
	c.driver = driver
	c.mu.Unlock()

	session, err := NewSessionManager(driver, c.cfg.Selectors, c.confirm, c.cfg.Session, logger)
	if err != nil {
		return err
	}
	session.OnStateChange(c.metrics.SetSessionState)

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if _, err := session.Establish(ctx); err != nil {
		return err
	}

	engine, err := NewDeliveryEngine(driver, c.cfg.Selectors, session, c.cfg.Engine, logger)
	if err != nil {
		return err
	}
	engine.SetMetrics(c.metrics)

	c.mu.Lock()
	c.engine = engine
	c.mu.Unlock()
	return nil
}

func (c *Channel) Send(ctx context.Context, address domain.Address, message string) domain.DeliveryOutcome {
	c.mu.RLock()
	engine := c.engine
	c.mu.RUnlock()

	if engine == nil {
		return domain.NewOutcome(c.now(), address.String(), domain.DeliveryStatusError, "whatsapp session is not open")
	}
	return engine.Send(ctx, address, message)
}

// SessionState is the current login state, Unauthenticated before Open.
func (c *Channel) SessionState() domain.SessionState {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	return session.State()
}

// Close quits the browser. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	driver := c.driver
	c.driver = nil
	c.engine = nil
	c.mu.Unlock()

	if driver == nil {
		return nil
	}
	if err := driver.Quit(); err != nil {
		return fmt.Errorf("quit browser: %w", err)
	}
	c.logger.Info("browser released")
	return nil
}
