package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodConfig configures how the browser is launched or attached.
type RodConfig struct {
	// Bin is the browser binary. Empty lets the launcher find or download one.
	Bin string
	// ControlURL attaches to an already running browser instead of launching.
	ControlURL string
	Headless   bool
	// UserDataDir keeps the profile (and the linked WhatsApp session) between
	// runs. Empty uses a throwaway profile removed on Quit.
	UserDataDir       string
	NavigationTimeout time.Duration
	// Flags are extra command-line switches, "name" or "name=value".
	Flags []string
}

// RodDriver is a Driver backed by a Chromium page controlled through the
// DevTools protocol.
type RodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	cfg      RodConfig
	logger   *zap.Logger
}

// LaunchRod starts (or attaches to) a browser and opens a blank page.
func LaunchRod(ctx context.Context, cfg RodConfig, logger *zap.Logger) (*RodDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := &RodDriver{cfg: cfg, logger: logger}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			Delete(flags.Flag("enable-automation"))
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.UserDataDir != "" {
			l = l.UserDataDir(cfg.UserDataDir)
		}
		for _, f := range cfg.Flags {
			name, value, hasValue := strings.Cut(strings.TrimLeft(f, "-"), "=")
			if hasValue {
				l = l.Set(flags.Flag(name), value)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}

		// The process outlives ctx: an in-flight send must be able to finish
		// after a run is aborted.
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
		d.launcher = l
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		d.killLauncher()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	d.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		_ = b.Close()
		d.killLauncher()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	d.page = page

	logger.Info("browser ready",
		zap.Bool("attached", cfg.ControlURL != ""),
		zap.Bool("headless", cfg.Headless),
		zap.Bool("persistentProfile", cfg.UserDataDir != ""),
	)
	return d, nil
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx).Timeout(d.cfg.NavigationTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (d *RodDriver) Find(ctx context.Context, query string, timeout time.Duration) (Element, error) {
	p := d.page.Context(ctx)
	if timeout > 0 {
		p = p.Timeout(timeout)
		defer p.CancelTimeout()
	}

	var (
		el  *rod.Element
		err error
	)
	if IsXPath(query) {
		el, err = p.ElementX(query)
	} else {
		el, err = p.Element(query)
	}
	if err != nil {
		// Per-query deadline expiry is a miss; caller cancellation is not.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, query)
		}
		return nil, err
	}

	return &rodElement{el: el}, nil
}

func (d *RodDriver) Count(ctx context.Context, query string) (int, error) {
	p := d.page.Context(ctx)

	var (
		els rod.Elements
		err error
	)
	if IsXPath(query) {
		els, err = p.ElementsX(query)
	} else {
		els, err = p.Elements(query)
	}
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", query, err)
	}
	return len(els), nil
}

func (d *RodDriver) Screenshot(ctx context.Context, path string) error {
	img, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// Quit closes the browser. A throwaway profile is removed with it; a
// configured profile directory is left in place.
func (d *RodDriver) Quit() error {
	var closeErr error
	if d.browser != nil {
		closeErr = d.browser.Close()
	}
	if d.launcher != nil {
		if d.cfg.UserDataDir == "" {
			d.launcher.Cleanup()
		} else {
			d.launcher.Kill()
		}
	}
	if closeErr != nil {
		return fmt.Errorf("close browser: %w", closeErr)
	}
	return nil
}

func (d *RodDriver) killLauncher() {
	if d.launcher != nil {
		d.launcher.Kill()
	}
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// Type inserts text at the focused caret without emitting key events, so
// characters like newlines never trigger a send.
func (e *rodElement) Type(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return err
	}
	return el.Page().InsertText(text)
}

func (e *rodElement) Press(ctx context.Context, key Key) error {
	el := e.el.Context(ctx)
	switch key {
	case KeyEnter:
		return el.Type(input.Enter)
	case KeyEscape:
		return el.Type(input.Escape)
	case KeyShiftEnter:
		if err := el.Focus(); err != nil {
			return err
		}
		return el.Page().KeyActions().Press(input.ShiftLeft).Type(input.Enter).Do()
	}
	return fmt.Errorf("unsupported key %s", key)
}
