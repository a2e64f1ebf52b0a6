package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kursadbilgin/wa-dispatch/internal/config"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/spf13/cobra"
)

const (
	exitFailure       = 1
	exitConfiguration = 2
	exitLoginTimedOut = 3
	exitAborted       = 130
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dispatch",
		Short: "Send personalized messages to a recipient list through WhatsApp Web",
		Long: `dispatch renders a message template for every row of a recipient CSV,
sends it through a logged-in WhatsApp Web session (or an SMS gateway) and
writes a report of what happened to each recipient.

Settings come from the environment and an optional .env file; flags
override them.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(), newPreviewCmd(), newReportCmd())
	return root
}

// campaignFlags are shared by run and preview.
type campaignFlags struct {
	recipients string
	template   string
	country    string
	channel    string
	report     string
}

func (f *campaignFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.recipients, "recipients", "", "recipient CSV file (RECIPIENTS_PATH)")
	cmd.Flags().StringVar(&f.template, "template", "", "message template file (TEMPLATE_PATH)")
	cmd.Flags().StringVar(&f.country, "country", "", "default country code, e.g. +57 (DEFAULT_COUNTRY_CODE)")
	cmd.Flags().StringVar(&f.channel, "channel", "", "delivery channel: whatsapp or sms (DISPATCH_CHANNEL)")
	cmd.Flags().StringVar(&f.report, "report", "", "report file (REPORT_PATH)")
}

// loadConfig reads the environment and applies the flags the user set.
func (f *campaignFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	flags := cmd.Flags()
	if flags.Changed("recipients") {
		cfg.RecipientsPath = f.recipients
	}
	if flags.Changed("template") {
		cfg.TemplatePath = f.template
	}
	if flags.Changed("country") {
		cfg.DefaultCountryCode = f.country
	}
	if flags.Changed("channel") {
		cfg.Channel = f.channel
	}
	if flags.Changed("report") {
		cfg.ReportPath = f.report
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireCampaign(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return exitAborted
	case errors.Is(err, domain.ErrLoginTimedOut):
		return exitLoginTimedOut
	case errors.Is(err, domain.ErrConfiguration):
		return exitConfiguration
	default:
		return exitFailure
	}
}
