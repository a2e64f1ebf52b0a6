package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"

	ScanConfirmationAny   = "any"
	ScanConfirmationStdin = "stdin"
	ScanConfirmationHTTP  = "http"

	dotEnvFile = ".env"
)

type Config struct {
	Channel            string `env:"DISPATCH_CHANNEL,default=whatsapp"`
	RecipientsPath     string `env:"RECIPIENTS_PATH"`
	TemplatePath       string `env:"TEMPLATE_PATH"`
	DefaultCountryCode string `env:"DEFAULT_COUNTRY_CODE,default=+57"`
	ReportPath         string `env:"REPORT_PATH,default=logs/registro_envios.txt"`
	ScreenshotDir      string `env:"SCREENSHOT_DIR,default=logs/screenshots"`
	SelectorsPath      string `env:"SELECTORS_PATH"`

	WhatsAppURL        string   `env:"WHATSAPP_URL,default=https://web.whatsapp.com"`
	BrowserBin         string   `env:"BROWSER_BIN"`
	BrowserControlURL  string   `env:"BROWSER_CONTROL_URL"`
	BrowserHeadless    bool     `env:"BROWSER_HEADLESS,default=false"`
	BrowserUserDataDir string   `env:"BROWSER_USER_DATA_DIR"`
	BrowserFlags       []string `env:"BROWSER_FLAGS"`

	NavigationTimeout   time.Duration `env:"NAVIGATION_TIMEOUT,default=30s"`
	ScanTimeout         time.Duration `env:"SCAN_TIMEOUT,default=120s"`
	PostScanTimeout     time.Duration `env:"POST_SCAN_TIMEOUT,default=5m"`
	AuthTimeout         time.Duration `env:"AUTH_TIMEOUT,default=30s"`
	DismissTimeout      time.Duration `env:"DISMISS_TIMEOUT,default=2s"`
	DismissRounds       int           `env:"DISMISS_ROUNDS,default=3"`
	DismissPause        time.Duration `env:"DISMISS_PAUSE,default=1s"`
	InputTimeout        time.Duration `env:"INPUT_TIMEOUT,default=15s"`
	StabilizeDelay      time.Duration `env:"STABILIZE_DELAY,default=7s"`
	FallbackFindTimeout time.Duration `env:"FALLBACK_FIND_TIMEOUT,default=3s"`
	ConfirmTimeout      time.Duration `env:"CONFIRM_TIMEOUT,default=10s"`
	PollInterval        time.Duration `env:"POLL_INTERVAL,default=500ms"`

	PaceDelay          time.Duration `env:"PACE_DELAY,default=10s"`
	PaceJitter         time.Duration `env:"PACE_JITTER,default=2s"`
	PaceLimitPerMinute int           `env:"PACE_LIMIT_PER_MINUTE,default=6"`
	PaceAccount        string        `env:"PACE_ACCOUNT,default=default"`
	RedisURL           string        `env:"REDIS_URL"`

	ScanConfirmation string `env:"SCAN_CONFIRMATION,default=any"`
	OpsAddr          string `env:"OPS_ADDR"`

	SMSWebhookURL string `env:"SMS_WEBHOOK_URL"`
	SMSMaxRetries int    `env:"SMS_MAX_RETRIES,default=2"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load reads the configuration from the process environment. Variables in
// a .env file in the working directory fill in anything not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Channel = strings.ToLower(strings.TrimSpace(cfg.Channel))
	cfg.ScanConfirmation = strings.ToLower(strings.TrimSpace(cfg.ScanConfirmation))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return &cfg, nil
}

// Validate checks cross-field rules. Every failure wraps
// domain.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string

	switch c.Channel {
	case ChannelWhatsApp:
	case ChannelSMS:
		if strings.TrimSpace(c.SMSWebhookURL) == "" {
			problems = append(problems, "SMS_WEBHOOK_URL is required for the sms channel")
		}
	default:
		problems = append(problems, fmt.Sprintf("DISPATCH_CHANNEL %q is not one of whatsapp, sms", c.Channel))
	}

	if _, err := domain.NormalizeCountryCode(c.DefaultCountryCode); err != nil {
		problems = append(problems, fmt.Sprintf("DEFAULT_COUNTRY_CODE: %v", err))
	}
	if strings.TrimSpace(c.ReportPath) == "" {
		problems = append(problems, "REPORT_PATH is required")
	}

	switch c.ScanConfirmation {
	case ScanConfirmationAny, ScanConfirmationStdin:
	case ScanConfirmationHTTP:
		if strings.TrimSpace(c.OpsAddr) == "" {
			problems = append(problems, "SCAN_CONFIRMATION=http needs OPS_ADDR")
		}
	default:
		problems = append(problems, fmt.Sprintf("SCAN_CONFIRMATION %q is not one of any, stdin, http", c.ScanConfirmation))
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT %q is not one of json, console", c.LogFormat))
	}

	for name, d := range map[string]time.Duration{
		"NAVIGATION_TIMEOUT":    c.NavigationTimeout,
		"SCAN_TIMEOUT":          c.ScanTimeout,
		"POST_SCAN_TIMEOUT":     c.PostScanTimeout,
		"AUTH_TIMEOUT":          c.AuthTimeout,
		"DISMISS_TIMEOUT":       c.DismissTimeout,
		"INPUT_TIMEOUT":         c.InputTimeout,
		"FALLBACK_FIND_TIMEOUT": c.FallbackFindTimeout,
		"CONFIRM_TIMEOUT":       c.ConfirmTimeout,
		"POLL_INTERVAL":         c.PollInterval,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", name))
		}
	}
	for name, d := range map[string]time.Duration{
		"DISMISS_PAUSE":   c.DismissPause,
		"STABILIZE_DELAY": c.StabilizeDelay,
		"PACE_DELAY":      c.PaceDelay,
		"PACE_JITTER":     c.PaceJitter,
	} {
		if d < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative", name))
		}
	}
	if c.DismissRounds < 1 {
		problems = append(problems, "DISMISS_ROUNDS must be at least 1")
	}
	if c.SMSMaxRetries < 0 {
		problems = append(problems, "SMS_MAX_RETRIES must not be negative")
	}
	if c.RedisURL != "" && c.PaceLimitPerMinute < 1 {
		problems = append(problems, "PACE_LIMIT_PER_MINUTE must be at least 1")
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
}

// RequireCampaign checks that the recipient and template sources are set.
func (c *Config) RequireCampaign() error {
	var missing []string
	if strings.TrimSpace(c.RecipientsPath) == "" {
		missing = append(missing, "RECIPIENTS_PATH (--recipients)")
	}
	if strings.TrimSpace(c.TemplatePath) == "" {
		missing = append(missing, "TEMPLATE_PATH (--template)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
