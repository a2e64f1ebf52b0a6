package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/observability"
	"github.com/kursadbilgin/wa-dispatch/internal/provider"
	"go.uber.org/zap"
)

const (
	runResultCompleted = "completed"
	runResultAborted   = "aborted"
	runResultFailed    = "failed"
)

// Campaign is what one run dispatches.
type Campaign struct {
	Recipients         []domain.Recipient
	Template           string
	DefaultCountryCode string
}

// Pacer blocks between consecutive sends.
type Pacer interface {
	Wait(ctx context.Context) error
}

// budgetAdmitter is implemented by pacers that also meter the first send.
type budgetAdmitter interface {
	Admit(ctx context.Context) error
}

// ReportWriter persists the ordered outcomes of a run.
type ReportWriter interface {
	Write(outcomes []domain.DeliveryOutcome) error
}

// Runner sequences one dispatch run: open the channel, send to every
// recipient in input order with pacing in between, then release the channel
// and write the report.
type Runner struct {
	channel  provider.Channel
	pacer    Pacer
	reports  ReportWriter
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	newRunID func() string
}

func NewRunner(
	channel provider.Channel,
	pacer Pacer,
	reports ReportWriter,
	logger *zap.Logger,
) (*Runner, error) {
	if channel == nil {
		return nil, fmt.Errorf("%w: delivery channel is required", domain.ErrConfiguration)
	}
	if reports == nil {
		return nil, fmt.Errorf("%w: report writer is required", domain.ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		channel:  channel,
		pacer:    pacer,
		reports:  reports,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

func (r *Runner) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Run dispatches the campaign. It always returns the report of what was
// recorded, even alongside an error. Fatal errors (domain.IsFatal) and
// cancellation stop the run before the next recipient; every other failure
// is recorded as an Error outcome and the run goes on.
func (r *Runner) Run(ctx context.Context, c Campaign) (report *domain.RunReport, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runID := r.newRunID()
	channelName := r.channel.Name()
	ctx = observability.WithRun(ctx, runID, channelName)
	logger := observability.Logger(ctx, r.logger)

	report = &domain.RunReport{
		RunID:    runID,
		Channel:  channelName,
		Started:  r.now(),
		Outcomes: make([]domain.DeliveryOutcome, 0, len(c.Recipients)),
	}

	defer func() {
		recovered := recover()
		report.Finished = r.now()
		if writeErr := r.reports.Write(report.Outcomes); writeErr != nil {
			logger.Error("failed to write report", zap.Error(writeErr))
			err = errors.Join(err, fmt.Errorf("write report: %w", writeErr))
		}

		result := runResultCompleted
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			result = runResultAborted
		case err != nil, recovered != nil:
			result = runResultFailed
		}
		r.metrics.IncRun(channelName, result)

		confirmed, total := report.Summary()
		logger.Info("run finished",
			zap.String("result", result),
			zap.Int("confirmed", confirmed),
			zap.Int("total", total),
			zap.Int("recipients", len(c.Recipients)),
			zap.Duration("elapsed", report.Finished.Sub(report.Started)),
		)

		if recovered != nil {
			panic(recovered)
		}
	}()

	defer func() {
		if closeErr := r.channel.Close(); closeErr != nil {
			logger.Warn("failed to close channel", zap.Error(closeErr))
		}
	}()

	countryCode, err := validateCampaign(c)
	if err != nil {
		return report, err
	}

	logger.Info("run started", zap.Int("recipients", len(c.Recipients)))

	if err := r.channel.Open(ctx); err != nil {
		return report, fmt.Errorf("open %s channel: %w", channelName, err)
	}

	if admitter, ok := r.pacer.(budgetAdmitter); ok && len(c.Recipients) > 0 {
		if err := admitter.Admit(ctx); err != nil {
			return report, r.pacingError(ctx, err, 0, len(c.Recipients))
		}
	}

	for i, recipient := range c.Recipients {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("run aborted after %d of %d recipients: %w", i, len(c.Recipients), err)
		}

		report.Outcomes = append(report.Outcomes, r.dispatch(ctx, logger, i, recipient, c.Template, countryCode))

		if i == len(c.Recipients)-1 || r.pacer == nil {
			continue
		}
		if err := r.pacer.Wait(ctx); err != nil {
			return report, r.pacingError(ctx, err, i+1, len(c.Recipients))
		}
	}

	return report, nil
}

// pacingError reports an abort when ctx ended, otherwise a broken pacing
// dependency.
func (r *Runner) pacingError(ctx context.Context, err error, done int, total int) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("run aborted after %d of %d recipients: %w", done, total, ctxErr)
	}
	return fmt.Errorf("%w: pacing: %v", domain.ErrConfiguration, err)
}

// dispatch turns one recipient into exactly one outcome.
func (r *Runner) dispatch(
	ctx context.Context,
	logger *zap.Logger,
	index int,
	recipient domain.Recipient,
	template string,
	countryCode string,
) domain.DeliveryOutcome {
	start := r.now()
	channelName := r.channel.Name()

	outcome := r.prepareAndSend(ctx, recipient, template, countryCode)

	elapsed := r.now().Sub(start)
	r.metrics.IncDelivery(channelName, outcome.Status.String())
	r.metrics.ObserveDeliveryDuration(channelName, elapsed)

	logger.Info("recipient processed",
		zap.Int("index", index),
		zap.String("address", outcome.Address),
		zap.String("status", outcome.Status.String()),
		zap.String("detail", outcome.Detail),
		zap.Bool("confirmed", outcome.Confirmed),
		zap.Duration("duration", elapsed),
	)
	return outcome
}

func (r *Runner) prepareAndSend(ctx context.Context, recipient domain.Recipient, template string, countryCode string) domain.DeliveryOutcome {
	raw, err := recipient.Phone()
	if err != nil {
		return domain.ErrorOutcome(r.now(), "", err)
	}

	address, err := domain.NormalizePhone(raw, countryCode)
	if err != nil {
		return domain.ErrorOutcome(r.now(), strings.TrimSpace(raw), err)
	}

	message, err := domain.RenderTemplate(template, recipient)
	if err != nil {
		return domain.ErrorOutcome(r.now(), address.String(), err)
	}

	// A send in progress always completes; cancellation is honoured
	// between recipients.
	return r.channel.Send(context.WithoutCancel(ctx), address, message)
}

func validateCampaign(c Campaign) (string, error) {
	if strings.TrimSpace(c.Template) == "" {
		return "", fmt.Errorf("%w: message template is empty", domain.ErrConfiguration)
	}
	countryCode, err := domain.NormalizeCountryCode(c.DefaultCountryCode)
	if err != nil {
		return "", err
	}
	return countryCode, nil
}
