package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/wa-dispatch/internal/browser"
	"github.com/kursadbilgin/wa-dispatch/internal/campaign"
	"github.com/kursadbilgin/wa-dispatch/internal/config"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/handler"
	infraredis "github.com/kursadbilgin/wa-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/wa-dispatch/internal/observability"
	"github.com/kursadbilgin/wa-dispatch/internal/provider"
	"github.com/kursadbilgin/wa-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/wa-dispatch/internal/report"
	"github.com/kursadbilgin/wa-dispatch/internal/service"
	"github.com/kursadbilgin/wa-dispatch/internal/transport"
	"github.com/kursadbilgin/wa-dispatch/internal/whatsapp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	opsShutdownTimeout = 5 * time.Second
	scanPrompt         = "Escanee el código QR en WhatsApp Web y presione Enter para continuar..."
)

func newRunCmd() *cobra.Command {
	var (
		flags campaignFlags
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send the campaign and write the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runDispatch(cmd, cfg, yes)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runDispatch(cmd *cobra.Command, cfg *config.Config, yes bool) error {
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	defer logger.Sync() //nolint:errcheck

	recipients, err := campaign.LoadRecipients(cfg.RecipientsPath)
	if err != nil {
		return err
	}
	template, err := campaign.LoadTemplate(cfg.TemplatePath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	fmt.Fprintf(out, "Plantilla:\n%s\n\nDestinatarios: %d (canal %s)\n", template, len(recipients), cfg.Channel)
	if !yes {
		ok, err := askConfirmation(in, out, "¿Enviar los mensajes? [s/N]: ")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Envío cancelado.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	metrics := observability.NewMetrics()

	var (
		rdb     *redis.Client
		limiter ratelimit.RateLimiter
	)
	if cfg.RedisURL != "" {
		rdb, err = infraredis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		defer rdb.Close()

		budget, err := infraredis.NewSendBudget(rdb, infraredis.BudgetConfig{
			Limit:  cfg.PaceLimitPerMinute,
			Window: time.Minute,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		limiter = budget
	}

	pacer, err := ratelimit.NewPacer(ratelimit.PacerConfig{
		BaseDelay: cfg.PaceDelay,
		Jitter:    cfg.PaceJitter,
		Account:   cfg.PaceAccount,
	}, limiter, logger)
	if err != nil {
		return err
	}
	pacer.SetMetrics(metrics)

	scanSignal := whatsapp.NewSignalConfirmation()
	channel, err := newChannel(cfg, scanConfirmation(cfg, in, out, scanSignal), metrics, logger)
	if err != nil {
		return err
	}

	reports, err := report.NewFileWriter(cfg.ReportPath, logger)
	if err != nil {
		return err
	}

	runner, err := service.NewRunner(channel, pacer, reports, logger)
	if err != nil {
		return err
	}
	runner.SetMetrics(metrics)

	var (
		ops    *fiber.App
		opsLn  net.Listener
		runEnd = make(chan struct{})
	)
	if cfg.OpsAddr != "" {
		session, _ := channel.(provider.SessionReporter)
		ops, err = newOpsApp(session, rdb, scanSignal, abort, metrics, logger)
		if err != nil {
			return err
		}
		// Bound before the run starts so shutdown always has a listener to close.
		opsLn, err = net.Listen("tcp", cfg.OpsAddr)
		if err != nil {
			return fmt.Errorf("%w: ops server: %v", domain.ErrConfiguration, err)
		}
	}

	var (
		g         errgroup.Group
		runReport *domain.RunReport
		runErr    error
	)
	if ops != nil {
		g.Go(func() error {
			logger.Info("ops server listening", zap.String("addr", opsLn.Addr().String()))
			err := ops.Listener(opsLn)
			select {
			case <-runEnd:
				return nil
			default:
			}
			abort()
			if err == nil {
				return errors.New("ops server stopped before the run finished")
			}
			return fmt.Errorf("ops server: %w", err)
		})
	}
	g.Go(func() error {
		if ops != nil {
			defer func() {
				close(runEnd)
				if err := ops.ShutdownWithTimeout(opsShutdownTimeout); err != nil {
					logger.Warn("ops server shutdown failed", zap.Error(err))
				}
				// Serve may not have started yet; a closed listener makes it return at once.
				_ = opsLn.Close()
			}()
		}
		runReport, runErr = runner.Run(runCtx, service.Campaign{
			Recipients:         recipients,
			Template:           template,
			DefaultCountryCode: cfg.DefaultCountryCode,
		})
		return nil
	})
	opsErr := g.Wait()

	confirmed, total := runReport.Summary()
	fmt.Fprintf(out, "Mensajes enviados: %d/%d\n", confirmed, total)
	fmt.Fprintf(out, "Reporte: %s\n", reports.Path())

	if runErr != nil {
		return runErr
	}
	return opsErr
}

func newChannel(
	cfg *config.Config,
	confirm whatsapp.Confirmation,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (provider.Channel, error) {
	if cfg.Channel == config.ChannelSMS {
		channel, err := provider.NewWebhookChannel(cfg.SMSWebhookURL, cfg.SMSMaxRetries, logger)
		if err != nil {
			return nil, err
		}
		return channel, nil
	}

	selectors, err := browser.LoadSelectors(cfg.SelectorsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	launch := whatsapp.RodLauncher(browser.RodConfig{
		Bin:               cfg.BrowserBin,
		ControlURL:        cfg.BrowserControlURL,
		Headless:          cfg.BrowserHeadless,
		UserDataDir:       cfg.BrowserUserDataDir,
		NavigationTimeout: cfg.NavigationTimeout,
		Flags:             cfg.BrowserFlags,
	}, logger)

	channel, err := whatsapp.NewChannel(launch, confirm, whatsapp.ChannelConfig{
		Selectors: selectors,
		Session: whatsapp.SessionConfig{
			EntryURL:        cfg.WhatsAppURL,
			ScanTimeout:     cfg.ScanTimeout,
			PostScanTimeout: cfg.PostScanTimeout,
			AuthTimeout:     cfg.AuthTimeout,
			PollInterval:    cfg.PollInterval,
			DismissTimeout:  cfg.DismissTimeout,
			DismissRounds:   cfg.DismissRounds,
			DismissPause:    cfg.DismissPause,
		},
		Engine: whatsapp.EngineConfig{
			BaseURL:             cfg.WhatsAppURL,
			ScreenshotDir:       cfg.ScreenshotDir,
			InputTimeout:        cfg.InputTimeout,
			StabilizeDelay:      cfg.StabilizeDelay,
			FallbackFindTimeout: cfg.FallbackFindTimeout,
			ConfirmTimeout:      cfg.ConfirmTimeout,
			PollInterval:        cfg.PollInterval,
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	channel.SetMetrics(metrics)
	return channel, nil
}

// scanConfirmation picks where the "QR scanned" confirmation comes from.
func scanConfirmation(cfg *config.Config, in io.Reader, out io.Writer, scanSignal *whatsapp.SignalConfirmation) whatsapp.Confirmation {
	stdin := whatsapp.NewStdinConfirmation(in, out, scanPrompt)

	switch cfg.ScanConfirmation {
	case config.ScanConfirmationStdin:
		return stdin
	case config.ScanConfirmationHTTP:
		return scanSignal
	default:
		if cfg.OpsAddr == "" {
			return stdin
		}
		return whatsapp.FirstConfirmation(stdin, scanSignal)
	}
}

func newOpsApp(
	session provider.SessionReporter,
	rdb *redis.Client,
	scan handler.ScanSignaler,
	abort func(),
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, session, rdb)
	handler.RegisterMetricsRoute(app, metrics)
	if err := handler.RegisterOpsRoutes(app, scan, abort); err != nil {
		return nil, err
	}

	return app, nil
}

func askConfirmation(in *bufio.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	answer, err := in.ReadString('\n')
	if err != nil && answer == "" {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "si", "sí", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
