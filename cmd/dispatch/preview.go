package main

import (
	"fmt"

	"github.com/kursadbilgin/wa-dispatch/internal/campaign"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/service"
	"github.com/spf13/cobra"
)

func newPreviewCmd() *cobra.Command {
	var flags campaignFlags

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render every message without sending anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}

			recipients, err := campaign.LoadRecipients(cfg.RecipientsPath)
			if err != nil {
				return err
			}
			template, err := campaign.LoadTemplate(cfg.TemplatePath)
			if err != nil {
				return err
			}

			rows, err := service.Preview(service.Campaign{
				Recipients:         recipients,
				Template:           template,
				DefaultCountryCode: cfg.DefaultCountryCode,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Campos usados: %v\n\n", domain.TemplateFields(template))

			problems := 0
			for _, row := range rows {
				if row.Problem != nil {
					problems++
					fmt.Fprintf(out, "#%d %s: ERROR %v\n", row.Index+1, row.Raw, row.Problem)
					continue
				}
				fmt.Fprintf(out, "#%d %s\n%s\n\n", row.Index+1, row.Address, row.Message)
			}

			fmt.Fprintf(out, "%d de %d destinatarios listos\n", len(rows)-problems, len(rows))
			if problems > 0 {
				return fmt.Errorf("%d of %d recipients have problems", problems, len(rows))
			}
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}
